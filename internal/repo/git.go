package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RustRemote is the upstream compiler repository.
const RustRemote = "https://github.com/rust-lang/rust.git"

// gitLogFormat yields one "<sha>\x1f<committer iso date>\x1f<subject>" record
// per commit.
const gitLogFormat = "%H%x1f%cI%x1f%s"

// GitAccessor reads commit history from a local bare clone of the compiler
// repository, cloning or fetching it on demand.
type GitAccessor struct {
	Path   string // Path of the bare clone, ./rust.git by default
	Remote string

	log *logrus.Logger

	fetched bool
	headRef string
}

// NewGitAccessor returns an accessor backed by a bare clone at ./rust.git.
func NewGitAccessor(log *logrus.Logger) *GitAccessor {
	return &GitAccessor{
		Path:   "rust.git",
		Remote: RustRemote,
		log:    log,
	}
}

func (g *GitAccessor) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Path
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", errors.Join(fmt.Errorf("git %s failed: %s", strings.Join(args, " "), exitErr.Stderr), err)
		}
		return "", errors.Join(fmt.Errorf("git %s failed", strings.Join(args, " ")), err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// ensureRepo clones the compiler repository if the local copy is missing and
// fetches the latest history once per process.
func (g *GitAccessor) ensureRepo(ctx context.Context) error {
	if g.fetched {
		return nil
	}
	if _, err := os.Stat(g.Path); os.IsNotExist(err) {
		g.log.Infof("Cloning %s into %s, this may take a while...", g.Remote, g.Path)
		cmd := exec.CommandContext(ctx, "git", "clone", "--bare", g.Remote, g.Path)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Join(fmt.Errorf("git clone of %s at %s failed, output: %s", g.Remote, g.Path, out), err)
		}
		g.headRef = "HEAD"
	} else {
		g.log.Infof("Refreshing repository at %s", g.Path)
		if _, err := g.git(ctx, "fetch", g.Remote, "master", "--tags"); err != nil {
			return err
		}
		g.headRef = "FETCH_HEAD"
	}
	g.fetched = true
	return nil
}

func (g *GitAccessor) Commit(ctx context.Context, ref string) (*Commit, error) {
	if err := g.ensureRepo(ctx); err != nil {
		return nil, err
	}
	// The bare clone has no remote-tracking branches; the tip of master is
	// HEAD after a clone and FETCH_HEAD after a fetch.
	if ref == "origin/master" {
		ref = g.headRef
	}
	out, err := g.git(ctx, "log", "-1", "--format="+gitLogFormat, ref)
	if err != nil {
		return nil, err
	}
	commit, err := parseGitLogLine(out)
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

func (g *GitAccessor) CommitsBetween(ctx context.Context, startSHA, endSHA string) ([]Commit, error) {
	if err := g.ensureRepo(ctx); err != nil {
		return nil, err
	}

	start, err := g.Commit(ctx, startSHA)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("resolving start commit %s failed", startSHA), err)
	}

	out, err := g.git(ctx, "log", "--reverse", "--first-parent", "--format="+gitLogFormat, startSHA+".."+endSHA)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("listing commits between %s and %s failed", startSHA, endSHA), err)
	}

	commits := []Commit{*start}
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		commit, err := parseGitLogLine(line)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

func (g *GitAccessor) TagDate(ctx context.Context, tag string) (time.Time, error) {
	if err := g.ensureRepo(ctx); err != nil {
		return time.Time{}, err
	}
	out, err := g.git(ctx, "log", "-1", "--format=%cI", tag)
	if err != nil {
		return time.Time{}, errors.Join(fmt.Errorf("resolving tag %s failed", tag), err)
	}
	return time.Parse(time.RFC3339, strings.TrimSpace(out))
}

func parseGitLogLine(line string) (Commit, error) {
	fields := strings.SplitN(line, "\x1f", 3)
	if len(fields) != 3 {
		return Commit{}, fmt.Errorf("unexpected git log record %q", line)
	}
	date, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return Commit{}, errors.Join(fmt.Errorf("unparsable commit date in %q", line), err)
	}
	return Commit{
		SHA:     fields[0],
		Date:    date.UTC(),
		Summary: fields[2],
	}, nil
}
