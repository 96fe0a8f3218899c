package bisect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kraktus/cargo-bisect-rustc/internal/repo"
	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

// Options is the full flag surface of the bisect-rustc subcommand.
type Options struct {
	Start *Bound // Left bound, without the regression
	End   *Bound // Right bound, with the regression

	Regress RegressOn // What counts as a regression

	Alt    bool   // Download the alt build instead of the normal build
	Host   string // Host triple for the compiler
	Target string // Cross-compilation target platform

	Preserve       bool // Keep downloaded toolchains after testing
	PreserveTarget bool // Keep a target directory per toolchain

	WithSource bool     // Also download rust-src
	WithDev    bool     // Also download rustc-dev
	Components []string // Additional components to install

	TestDir string // Root directory for tests

	Prompt     bool // Ask for the verdict after each run
	PromptPort int  // Serve verdicts over HTTP on this port instead of the terminal

	Timeout time.Duration // Assume failure after this long, for bisecting hangs

	Verbosity int

	Args []string // Arguments passed to cargo, or to the script

	ByCommit bool   // Bisect via per-commit CI artifacts
	Access   string // How to access the compiler repository (checkout, github)

	Install      *Bound // Install the given artifact and exit
	ForceInstall bool   // Overwrite existing artifacts

	Script string // Replacement for the cargo invocation

	WithoutCargo bool // Do not install cargo
}

// EmitCargoOutput reports whether the child's build output should be passed
// through.
func (o Options) EmitCargoOutput() bool {
	return o.Verbosity >= 2
}

// A Config is a validated, ready-to-run bisection.
type Config struct {
	Opts Options

	Target   string // Resolved target triple
	IsCommit bool   // Whether the search runs over CI commits rather than nightlies

	TmpDir        string // Download staging directory inside the rustup home
	ToolchainsDir string

	Client   *toolchain.Client
	Accessor repo.Accessor
	Decider  Decider

	Log *logrus.Logger
	Out io.Writer // Where user-facing results get written

	// ReportSink, if set, additionally receives the final regression report.
	ReportSink func(report string)
}

// NewConfig validates the options and resolves the environment: host triple,
// rustup layout, repository accessor, and the bound kinds. Tag bounds get
// translated to dates, and with --by-commit date bounds get resolved to the
// commits the nightlies were built from.
func NewConfig(ctx context.Context, opts Options, log *logrus.Logger) (*Config, error) {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	if opts.Host == "" {
		host, err := toolchain.HostTriple()
		if err != nil {
			return nil, errors.Join(errors.New("failed to auto-detect the host triple, please provide it via --host"), err)
		}
		opts.Host = host
	}
	target := opts.Target
	if target == "" {
		target = opts.Host
	}

	if opts.TestDir == "" {
		opts.TestDir = "."
	}
	if fi, err := os.Stat(opts.TestDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s is not an existing directory", opts.TestDir)
	}
	if opts.Script != "" {
		if fi, err := os.Stat(opts.Script); err != nil || fi.IsDir() {
			return nil, fmt.Errorf("%s is not an existing file", opts.Script)
		}
	}
	if opts.Regress == "" {
		opts.Regress = RegressError
	}
	if opts.Access == "" {
		opts.Access = repo.AccessCheckout
	}

	accessor, err := repo.ForAccess(opts.Access, log)
	if err != nil {
		return nil, err
	}

	if err := fixupBounds(ctx, accessor, opts.Start, opts.End, log); err != nil {
		return nil, err
	}
	if err := checkBounds(opts.Start, opts.End, time.Now()); err != nil {
		return nil, err
	}

	rustupHome := os.Getenv("RUSTUP_HOME")
	if rustupHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		rustupHome = filepath.Join(home, ".rustup")
	}
	// Staging under the rustup home instead of $TMPDIR keeps installation a
	// rename instead of a cross-filesystem copy.
	tmpDir := filepath.Join(rustupHome, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}
	toolchainsDir := filepath.Join(rustupHome, "toolchains")
	if fi, err := os.Stat(toolchainsDir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("`%s` is not a directory. Please install rustup", toolchainsDir)
	}

	client := toolchain.NewClient(log)

	isCommit, err := boundKind(opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	if isCommit != nil && !*isCommit && opts.ByCommit {
		log.Info("Finding the commit range that corresponds to the dates specified")
		for _, b := range []*Bound{opts.Start, opts.End} {
			if b == nil {
				continue
			}
			sha, err := b.SHA(ctx, client)
			if err != nil {
				return nil, err
			}
			*b = Bound{Commit: sha}
		}
	}

	cfg := &Config{
		Opts:          opts,
		Target:        target,
		IsCommit:      opts.ByCommit || (isCommit != nil && *isCommit),
		TmpDir:        tmpDir,
		ToolchainsDir: toolchainsDir,
		Client:        client,
		Accessor:      accessor,
		Log:           log,
		Out:           os.Stderr,
	}
	cfg.Decider = AutoDecider{Regress: opts.Regress, Log: log}
	if opts.Prompt && opts.PromptPort == 0 {
		cfg.Decider = PromptDecider{Log: log}
	}
	return cfg, nil
}

// boundKind returns whether the bounds identify commits (true), dates
// (false), or nothing at all (nil). Mixing kinds is an error.
func boundKind(start, end *Bound) (*bool, error) {
	kind := func(b *Bound) *bool {
		if b == nil {
			return nil
		}
		isCommit := !b.IsDate()
		return &isCommit
	}
	s, e := kind(start), kind(end)
	switch {
	case s == nil && e == nil:
		return nil, nil
	case s == nil:
		return e, nil
	case e == nil:
		return s, nil
	case *s == *e:
		return s, nil
	}
	return nil, fmt.Errorf("cannot take different types of bounds for start/end, got start: %s and end %s", start, end)
}

func (c *Config) installConfig(force bool) toolchain.InstallConfig {
	return toolchain.InstallConfig{
		TmpDir:        c.TmpDir,
		ToolchainsDir: c.ToolchainsDir,
		WithoutCargo:  c.Opts.WithoutCargo,
		WithSource:    c.Opts.WithSource,
		WithDev:       c.Opts.WithDev,
		Components:    c.Opts.Components,
		Force:         force,
	}
}

func (c *Config) runOptions() toolchain.RunOptions {
	return toolchain.RunOptions{
		TestDir:        c.Opts.TestDir,
		Script:         c.Opts.Script,
		Args:           c.Opts.Args,
		Timeout:        c.Opts.Timeout,
		PreserveTarget: c.Opts.PreserveTarget,
		TargetRoot:     filepath.Join(c.Opts.TestDir, "target"),
		EmitOutput:     c.Opts.EmitCargoOutput(),
	}
}

// newToolchain builds the toolchain for a spec with the configured host and
// std targets.
func (c *Config) newToolchain(spec toolchain.Spec) toolchain.Toolchain {
	return toolchain.New(spec, c.Opts.Host, []string{c.Opts.Host, c.Target})
}

// InstallBound installs the toolchain for a single bound, the --install mode.
func (c *Config) InstallBound(ctx context.Context, bound Bound) error {
	var spec toolchain.Spec
	if bound.IsDate() {
		spec = toolchain.NightlySpec(bound.Date)
	} else {
		commit, err := c.Accessor.Commit(ctx, bound.Commit)
		if err != nil {
			return err
		}
		spec = toolchain.CISpec(commit.SHA, c.Opts.Alt)
	}
	t := c.newToolchain(spec)
	return t.Install(ctx, c.Client, c.installConfig(c.Opts.ForceInstall))
}

// installAndTest probes one toolchain: install, run the test, get a verdict,
// and remove the toolchain again. Install failures surface as errors so the
// drivers can distinguish missing artifacts from real failures.
func (c *Config) installAndTest(ctx context.Context, t toolchain.Toolchain) (Satisfies, error) {
	cfg := c.installConfig(c.Opts.ForceInstall)
	if err := t.Install(ctx, c.Client, cfg); err != nil {
		c.removeToolchain(t)
		return Unknown, err
	}

	res, err := t.Test(ctx, c.runOptions(), c.Log.WithField("toolchain", t.RustupName()))
	if err != nil {
		c.removeToolchain(t)
		return Unknown, err
	}

	var outcome Outcome
	if res.TimedOut {
		outcome = Regressed
	} else {
		outcome, err = c.Decider.Decide(t, res)
		if err != nil {
			c.removeToolchain(t)
			return Unknown, err
		}
	}

	// A regressed run satisfies the search, a baseline run does not.
	r := No
	if outcome == Regressed {
		r = Yes
	}
	c.Log.Infof("RESULT: %s, ===> %s", t, r)
	c.removeToolchain(t)
	return r, nil
}

// removeToolchain deletes a probed toolchain unless --preserve is set. A
// preserved toolchain that is merely a rustup link is still removed, since
// the link would go stale within a day.
func (c *Config) removeToolchain(t toolchain.Toolchain) {
	cfg := c.installConfig(false)
	if c.Opts.Preserve {
		fi, err := os.Lstat(t.InstallPath(cfg))
		if err != nil || fi.Mode()&os.ModeSymlink == 0 {
			return
		}
		c.Log.Debugf("Removing linked toolchain %s", t)
	}
	if err := t.Remove(cfg); err != nil {
		c.Log.Debugf("Failed to remove toolchain %s: %v", t, err)
	}
}

// Run executes the configured operation: a single install with --install, a
// CI-commit bisection, or a nightly bisection followed by the descent into
// the regressed nightly's commit range.
func (c *Config) Run(ctx context.Context) error {
	if c.Opts.Install != nil {
		return c.InstallBound(ctx, *c.Opts.Install)
	}
	return c.Bisect(ctx)
}
