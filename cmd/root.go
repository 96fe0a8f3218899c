package cmd

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var verbosity int

var rootCmd = &cobra.Command{
	Use:   "cargo",
	Short: "Bisect rustc nightlies and CI artifacts to find the build that introduced a regression",
	Long:  ``,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("ERROR: %v", err)
		os.Exit(1)
	}
}

// newLogger builds the logger for the current -v count, in steps from
// warnings only up to trace output.
func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&prefixed.TextFormatter{})

	switch {
	case verbosity <= 0:
		log.SetLevel(logrus.WarnLevel)
	case verbosity == 1:
		log.SetLevel(logrus.InfoLevel)
	case verbosity == 2:
		log.SetLevel(logrus.DebugLevel)
	default:
		log.SetLevel(logrus.TraceLevel)
	}
	return log
}

func init() {
	// The original cargo subcommand labels its command list SUBCOMMANDS.
	rootCmd.SetUsageTemplate(strings.ReplaceAll(rootCmd.UsageTemplate(), "Available Commands:", "SUBCOMMANDS:"))

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity, repeatable")
}
