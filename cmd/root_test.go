package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHelp(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--help"))
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestHelpListsSubcommands(t *testing.T) {
	help := runHelp(t)
	assert.Contains(t, help, "SUBCOMMANDS:")
	assert.Contains(t, help, "bisect-rustc")
	assert.Contains(t, help, "clean")
}

func TestBisectHelpShowsExamples(t *testing.T) {
	help := runHelp(t, "bisect-rustc")
	assert.Contains(t, help, "EXAMPLES:")
	assert.Contains(t, help, "--start")
	assert.Contains(t, help, "--regress")
}
