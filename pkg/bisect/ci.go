package bisect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kraktus/cargo-bisect-rustc/internal/repo"
	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

// epochCommit is the first commit whose build artifacts were published by CI.
// Its own artifacts have long expired, but it still bounds the search.
const epochCommit = "927c55d86b0be44337f37cf5b0a76fb8ba86e06c"

// artifactExpiry is how long per-commit CI artifacts stay available.
const artifactExpiry = 167 * day

// bisectCI finds the commit that introduced the regression using per-commit
// artifacts.
func (c *Config) bisectCI(ctx context.Context) (*BisectionResult, error) {
	c.Log.Info("Bisecting ci builds")

	start := epochCommit
	if c.Opts.Start != nil && !c.Opts.Start.IsDate() {
		start = c.Opts.Start.Commit
	}
	end := "origin/master"
	if c.Opts.End != nil && !c.Opts.End.IsDate() {
		end = c.Opts.End.Commit
	}

	c.Log.Infof("Starting at %s, ending at %s", start, end)
	return c.bisectCIVia(ctx, start, end)
}

func (c *Config) bisectCIVia(ctx context.Context, startSHA, endRef string) (*BisectionResult, error) {
	endCommit, err := c.Accessor.Commit(ctx, endRef)
	if err != nil {
		return nil, err
	}
	commits, err := c.Accessor.CommitsBetween(ctx, startSHA, endCommit.SHA)
	if err != nil {
		return nil, err
	}

	if len(commits) == 0 || commits[len(commits)-1].SHA != endCommit.SHA {
		return nil, fmt.Errorf("expected the commit range to end at %s", endCommit.SHA)
	}
	for i := 1; i < len(commits); i++ {
		if commits[i-1].Date.After(commits[i].Date) {
			return nil, fmt.Errorf("commits must be chronologically ordered, but %s comes after %s",
				commits[i-1].SHA, commits[i].SHA)
		}
	}

	for i, commit := range commits {
		summary, _, _ := strings.Cut(commit.Summary, "\n")
		c.Log.Debugf("  commit[%d] %s: %s", i, commit.Date.Format(toolchain.YYYYMMDD), summary)
	}

	return c.bisectCIInCommits(ctx, startSHA, endRef, commits)
}

func (c *Config) bisectCIInCommits(ctx context.Context, start, end string, commits []repo.Commit) (*BisectionResult, error) {
	now := time.Now()
	alive := commits[:0]
	for _, commit := range commits {
		if now.Sub(commit.Date) < artifactExpiry {
			alive = append(alive, commit)
		}
	}
	commits = alive

	if len(commits) == 0 {
		return nil, fmt.Errorf("no CI builds available between %s and %s within last %d days",
			start, end, int(artifactExpiry/day))
	}
	if last := commits[len(commits)-1]; end != "origin/master" && !strings.HasPrefix(last.SHA, end) {
		return nil, fmt.Errorf("expected to end with %s, but ended with %s", end, last.SHA)
	}

	c.Log.Info("Validated commits found, specifying toolchains")

	toolchains := make([]toolchain.Toolchain, len(commits))
	for i, commit := range commits {
		toolchains[i] = c.newToolchain(toolchain.CISpec(commit.SHA, c.Opts.Alt))
	}

	c.Log.Info("Checking the start of the range to verify it passes")
	startResult, err := c.installAndTest(ctx, toolchains[0])
	if err != nil {
		return nil, err
	}
	if startResult == Yes {
		return nil, fmt.Errorf("the commit at the start of the range (%s) includes the regression", toolchains[0])
	}

	c.Log.Info("Checking the end of the range to verify it does not pass")
	endResult, err := c.installAndTest(ctx, toolchains[len(toolchains)-1])
	if err != nil {
		return nil, err
	}
	if endResult == No {
		return nil, fmt.Errorf("the commit at the end of the range (%s) does not reproduce the regression", toolchains[len(toolchains)-1])
	}

	found := c.bisectToRegression(ctx, toolchains)
	return &BisectionResult{Searched: toolchains, Found: found}, nil
}
