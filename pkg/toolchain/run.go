package toolchain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RunOptions controls how a toolchain is exercised against the project under
// bisection.
type RunOptions struct {
	TestDir string // The project to build/test

	Script string   // Replacement for the cargo invocation, run with Args
	Args   []string // Arguments passed to cargo (default: build) or Script

	Timeout time.Duration // Kill the run and treat it as regressed after this long. Zero means no timeout

	PreserveTarget bool   // Keep a separate cargo target dir per toolchain
	TargetRoot     string // Root under which target dirs are placed. Empty leaves cargo's default

	EmitOutput bool // Stream the child's output to the parent's stdout/stderr
}

// A ProcessResult captures the outcome of one toolchain run.
type ProcessResult struct {
	Success bool // Whether the process exited with status zero

	TimedOut bool // Whether the run was killed by the timeout

	Stdout string
	Stderr string
}

// Test runs cargo (or the replacement script) in the test directory with this
// toolchain selected via RUSTUP_TOOLCHAIN. A non-zero exit status is a normal
// result, not an error; only failures to launch the process are errors.
func (t Toolchain) Test(ctx context.Context, opts RunOptions, log *logrus.Entry) (*ProcessResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if opts.Script != "" {
		cmd = exec.CommandContext(ctx, opts.Script, opts.Args...)
	} else {
		args := opts.Args
		if len(args) == 0 {
			args = []string{"build"}
		}
		cmd = exec.CommandContext(ctx, "cargo", args...)
	}
	cmd.Dir = opts.TestDir
	// Killing the direct child does not close pipes a hung grandchild (a
	// wedged rustc under cargo) inherited. The wait delay unblocks Run
	// regardless, and on unix the whole process group gets the signal.
	cmd.WaitDelay = 5 * time.Second
	setProcessGroup(cmd)

	env := append(os.Environ(), "RUSTUP_TOOLCHAIN="+t.RustupName())
	if opts.TargetRoot != "" {
		targetDir := filepath.Join(opts.TargetRoot, "bisector")
		if opts.PreserveTarget {
			targetDir = filepath.Join(opts.TargetRoot, "bisector-"+t.RustupName())
		}
		env = append(env, "CARGO_TARGET_DIR="+targetDir)
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Infof("Testing toolchain %s", t.RustupName())
	log.Debugf("Running %q in %s", cmd.Args, opts.TestDir)

	err := cmd.Run()
	timedOut := ctx.Err() == context.DeadlineExceeded
	if err != nil && !timedOut && !errors.Is(err, exec.ErrWaitDelay) {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, err
		}
	}

	res := &ProcessResult{
		Success:  err == nil || errors.Is(err, exec.ErrWaitDelay),
		TimedOut: timedOut,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if timedOut {
		log.Warnf("Run of %s timed out after %s, assuming failure", t.RustupName(), opts.Timeout)
		res.Success = false
	}
	if opts.EmitOutput {
		os.Stdout.WriteString(res.Stdout)
		os.Stderr.WriteString(res.Stderr)
	}
	log.Debugf("Run finished, success: %t, timed out: %t", res.Success, res.TimedOut)

	return res, nil
}

// HostTriple detects the host target triple by asking the installed rustc.
func HostTriple() (string, error) {
	out, err := exec.Command("rustc", "-vV").Output()
	if err != nil {
		return "", err
	}
	return parseHostTriple(string(out))
}

func parseHostTriple(verbose string) (string, error) {
	for _, line := range strings.Split(verbose, "\n") {
		if triple, ok := strings.CutPrefix(strings.TrimSpace(line), "host: "); ok {
			return triple, nil
		}
	}
	return "", errors.New("no host line in rustc -vV output")
}
