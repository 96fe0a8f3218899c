package toolchain

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("toolchain", "test")
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestTestReportsExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}
	dir := t.TempDir()
	tc := New(NightlySpec(date(2018, 7, 7)), linuxHost, nil)

	pass := writeScript(t, dir, "pass.sh", "echo ok\nexit 0\n")
	res, err := tc.Test(context.Background(), RunOptions{TestDir: dir, Script: pass}, testLogEntry())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.Stdout, "ok")

	fail := writeScript(t, dir, "fail.sh", "echo broken >&2\nexit 1\n")
	res, err = tc.Test(context.Background(), RunOptions{TestDir: dir, Script: fail}, testLogEntry())
	require.NoError(t, err, "a non-zero exit is a result, not an error")
	assert.False(t, res.Success)
	assert.Contains(t, res.Stderr, "broken")
}

func TestTestTimeoutKillsOrphanedChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on shell scripts")
	}
	dir := t.TempDir()
	hang := writeScript(t, dir, "hang.sh", "sleep 30 &\nsleep 30\n")

	tc := New(NightlySpec(date(2018, 7, 7)), linuxHost, nil)

	start := time.Now()
	res, err := tc.Test(context.Background(), RunOptions{TestDir: dir, Script: hang, Timeout: time.Second}, testLogEntry())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success)
	assert.Less(t, elapsed, 10*time.Second, "a timed-out run must not block on surviving children")
}
