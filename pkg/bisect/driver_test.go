package bisect

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraktus/cargo-bisect-rustc/internal/repo"
	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

// stubAccessor serves a fixed commit range, standing in for the git/github
// accessors in driver tests.
type stubAccessor struct {
	commits map[string]repo.Commit
	between []repo.Commit
}

func (s *stubAccessor) Commit(_ context.Context, ref string) (*repo.Commit, error) {
	if c, ok := s.commits[ref]; ok {
		return &c, nil
	}
	return nil, fmt.Errorf("unknown ref %s", ref)
}

func (s *stubAccessor) CommitsBetween(_ context.Context, _, _ string) ([]repo.Commit, error) {
	return append([]repo.Commit(nil), s.between...), nil
}

func (s *stubAccessor) TagDate(ctx context.Context, tag string) (time.Time, error) {
	c, err := s.Commit(ctx, tag)
	if err != nil {
		return time.Time{}, err
	}
	return c.Date, nil
}

// verdictFunc classifies probed toolchains without looking at the run.
type verdictFunc func(t toolchain.Toolchain) Outcome

func (f verdictFunc) Decide(t toolchain.Toolchain, _ *toolchain.ProcessResult) (Outcome, error) {
	return f(t), nil
}

func minimalTarball(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	contents := "tool"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "archive/component/bin/tool",
		Mode: 0o755,
		Size: int64(len(contents)),
	}))
	_, err := tw.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// artifactServer answers every component URL with the same minimal tarball.
// Paths the missing filter matches answer 404, like an unpublished nightly.
func artifactServer(t *testing.T, missing func(path string) bool) *httptest.Server {
	t.Helper()
	payload := minimalTarball(t)
	sum := fmt.Sprintf("%x  component.tar.gz\n", sha256.Sum256(payload))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if missing != nil && missing(r.URL.Path) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".sha256") {
			fmt.Fprint(w, sum)
			return
		}
		w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func driverConfig(t *testing.T, serverURL string, accessor repo.Accessor, verdict verdictFunc) *Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}

	root := t.TempDir()
	tmpDir := filepath.Join(root, "tmp")
	toolchainsDir := filepath.Join(root, "toolchains")
	require.NoError(t, os.MkdirAll(tmpDir, 0o755))
	require.NoError(t, os.MkdirAll(toolchainsDir, 0o755))

	script := filepath.Join(root, "probe.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	log := logrus.New()
	log.SetOutput(io.Discard)

	client := toolchain.NewClient(nil)
	client.NightlyRoot = serverURL
	client.CIRoot = serverURL
	client.CIAltRoot = serverURL
	client.MaxRetries = 1

	return &Config{
		Opts: Options{
			Host:    "x86_64-unknown-linux-gnu",
			TestDir: root,
			Script:  script,
		},
		Target:        "x86_64-unknown-linux-gnu",
		TmpDir:        tmpDir,
		ToolchainsDir: toolchainsDir,
		Client:        client,
		Accessor:      accessor,
		Decider:       verdict,
		Log:           log,
		Out:           io.Discard,
	}
}

func ciCommit(sha string, age time.Duration) repo.Commit {
	return repo.Commit{
		SHA:     sha,
		Date:    time.Now().UTC().Add(-age),
		Summary: "Auto merge of #" + sha,
	}
}

func TestBisectCIRejectsUnorderedCommits(t *testing.T) {
	end := ciCommit("bbb", 2*time.Hour)
	accessor := &stubAccessor{
		commits: map[string]repo.Commit{"end": end},
		between: []repo.Commit{ciCommit("aaa", time.Hour), end},
	}
	cfg := driverConfig(t, artifactServer(t, nil).URL, accessor, nil)

	_, err := cfg.bisectCIVia(context.Background(), "aaa", "end")
	assert.ErrorContains(t, err, "chronologically ordered")
}

func TestBisectCIRejectsWrongEndpoint(t *testing.T) {
	accessor := &stubAccessor{
		commits: map[string]repo.Commit{"end": ciCommit("ccc", time.Hour)},
		between: []repo.Commit{ciCommit("aaa", 2*time.Hour), ciCommit("bbb", time.Hour)},
	}
	cfg := driverConfig(t, artifactServer(t, nil).URL, accessor, nil)

	_, err := cfg.bisectCIVia(context.Background(), "aaa", "end")
	assert.ErrorContains(t, err, "expected the commit range to end at ccc")
}

func TestBisectCIAllCommitsExpired(t *testing.T) {
	end := ciCommit("eee", 180*day)
	accessor := &stubAccessor{
		commits: map[string]repo.Commit{"origin/master": end},
		between: []repo.Commit{ciCommit("ddd", 200*day), end},
	}
	cfg := driverConfig(t, artifactServer(t, nil).URL, accessor, nil)

	_, err := cfg.bisectCI(context.Background())
	assert.ErrorContains(t, err, "no CI builds available")
}

func TestBisectCIFiltersExpiredCommits(t *testing.T) {
	old := ciCommit("oldold", 200*day)
	good := ciCommit("goodsha", 2*time.Hour)
	bad := ciCommit("badsha", time.Hour)
	accessor := &stubAccessor{
		commits: map[string]repo.Commit{"origin/master": bad},
		between: []repo.Commit{old, good, bad},
	}
	cfg := driverConfig(t, artifactServer(t, nil).URL, accessor, verdictFunc(func(tc toolchain.Toolchain) Outcome {
		if tc.Spec.Commit == "badsha" {
			return Regressed
		}
		return Baseline
	}))

	result, err := cfg.bisectCI(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Searched, 2, "commits past the artifact expiry must be dropped")
	assert.Equal(t, "goodsha", result.Searched[0].Spec.Commit)
	assert.Equal(t, "badsha", result.Searched[result.Found].Spec.Commit)
}

func TestBisectCIStartMustNotRegress(t *testing.T) {
	end := ciCommit("bbb", time.Hour)
	accessor := &stubAccessor{
		commits: map[string]repo.Commit{"origin/master": end},
		between: []repo.Commit{ciCommit("aaa", 2*time.Hour), end},
	}
	cfg := driverConfig(t, artifactServer(t, nil).URL, accessor, verdictFunc(func(toolchain.Toolchain) Outcome {
		return Regressed
	}))

	_, err := cfg.bisectCI(context.Background())
	assert.ErrorContains(t, err, "includes the regression")
}

func TestBisectCIEndMustRegress(t *testing.T) {
	end := ciCommit("bbb", time.Hour)
	accessor := &stubAccessor{
		commits: map[string]repo.Commit{"origin/master": end},
		between: []repo.Commit{ciCommit("aaa", 2*time.Hour), end},
	}
	cfg := driverConfig(t, artifactServer(t, nil).URL, accessor, verdictFunc(func(toolchain.Toolchain) Outcome {
		return Baseline
	}))

	_, err := cfg.bisectCI(context.Background())
	assert.ErrorContains(t, err, "does not reproduce the regression")
}

func TestBisectNightliesStartMustNotRegress(t *testing.T) {
	cfg := driverConfig(t, artifactServer(t, nil).URL, &stubAccessor{}, verdictFunc(func(toolchain.Toolchain) Outcome {
		return Regressed
	}))
	start := ParseBound("2018-07-07")
	end := ParseBound("2018-07-30")
	cfg.Opts.Start = &start
	cfg.Opts.End = &end

	_, err := cfg.bisectNightlies(context.Background())
	assert.ErrorContains(t, err, "must not reproduce the regression")
}

func TestBisectNightliesMissingStart(t *testing.T) {
	server := artifactServer(t, func(path string) bool {
		return strings.Contains(path, "2018-07-28")
	})
	cfg := driverConfig(t, server.URL, &stubAccessor{}, verdictFunc(func(toolchain.Toolchain) Outcome {
		return Baseline
	}))
	start := ParseBound("2018-07-28")
	end := ParseBound("2018-07-30")
	cfg.Opts.Start = &start
	cfg.Opts.End = &end

	_, err := cfg.bisectNightlies(context.Background())
	assert.ErrorContains(t, err, "could not find")
}

func TestBisectNightliesSkipsMissingNightly(t *testing.T) {
	// 2018-07-28 was never published. The backwards probe rolls over it by
	// a day, and the search later classifies it as unknown.
	server := artifactServer(t, func(path string) bool {
		return strings.Contains(path, "2018-07-28")
	})
	regressedOn := date(2018, 7, 29)
	cfg := driverConfig(t, server.URL, &stubAccessor{}, verdictFunc(func(tc toolchain.Toolchain) Outcome {
		if tc.Spec.Date.Before(regressedOn) {
			return Baseline
		}
		return Regressed
	}))
	end := ParseBound("2018-07-30")
	cfg.Opts.End = &end

	result, err := cfg.bisectNightlies(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Searched, 4)
	assert.Equal(t, date(2018, 7, 27), result.Searched[0].Spec.Date, "the probe must roll back past the missing day")
	assert.Equal(t, regressedOn, result.Searched[result.Found].Spec.Date)
}
