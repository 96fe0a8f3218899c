package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kraktus/cargo-bisect-rustc/internal/server"
	"github.com/kraktus/cargo-bisect-rustc/pkg/bisect"
)

var bisectFlags struct {
	config string

	start string
	end   string

	regress string

	alt    bool
	host   string
	target string

	preserve       bool
	preserveTarget bool

	withSrc    bool
	withDev    bool
	components []string

	testDir string

	prompt     bool
	promptPort int

	timeoutSeconds int

	byCommit bool
	access   string

	install      string
	forceInstall bool

	script string

	withoutCargo bool
}

var bisectCmd = &cobra.Command{
	Use:   "bisect-rustc [flags] [-- CARGO_ARGS...]",
	Short: "Bisect rustc builds to find the one that introduced a regression",
	Long: `Bisect rustc builds to find the one that introduced a regression.

The search runs over published nightly releases first and then descends into
the per-commit CI artifacts of the regressed nightly. Each candidate build is
installed into the local rustup layout, run against the project in --test-dir
(with cargo or the --script replacement), classified, and removed again.

EXAMPLES:
    Run a fully automatic nightly bisect doing ` + "`cargo check`" + `:
    ` + "```" + `
    cargo bisect-rustc --start 2018-07-07 --end 2018-07-30 --test-dir ../my_project/ -- check
    ` + "```" + `

    Run a PR-based bisect with manual prompts after each run doing ` + "`cargo build`" + `:
    ` + "```" + `
    cargo bisect-rustc --start 6a1c0637ce44aeea6c60527f4c0e7fb33f2bcd0d \
      --end 866a713258915e6cbb212d135f751a6a8c9e1c0a --test-dir ../my_project/ --prompt -- build
    ` + "```",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		opts, err := assembleOptions(cmd, args)
		if err != nil {
			return err
		}

		log := newLogger()
		ctx := context.Background()

		cfg, err := bisect.NewConfig(ctx, *opts, log)
		if err != nil {
			return err
		}

		if opts.PromptPort != 0 {
			srv := server.New(opts.PromptPort, log)
			if err := srv.Start(); err != nil {
				return err
			}
			cfg.Decider = srv
			cfg.ReportSink = srv.PublishReport
		}

		return cfg.Run(ctx)
	},
}

// assembleOptions merges the yaml job file (if any) with the flags given on
// the command line; explicit flags win.
func assembleOptions(cmd *cobra.Command, args []string) (*bisect.Options, error) {
	opts := &bisect.Options{}
	fromConfig := bisectFlags.config != ""
	if fromConfig {
		f, err := os.Open(bisectFlags.config)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		opts, err = bisect.OptionsFromConfig(f)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	use := func(name string) bool {
		return !fromConfig || flags.Changed(name)
	}

	if use("start") && bisectFlags.start != "" {
		b := bisect.ParseBound(bisectFlags.start)
		opts.Start = &b
	}
	if use("end") && bisectFlags.end != "" {
		b := bisect.ParseBound(bisectFlags.end)
		opts.End = &b
	}
	if use("regress") {
		regress, err := bisect.ParseRegressOn(bisectFlags.regress)
		if err != nil {
			return nil, err
		}
		opts.Regress = regress
	}
	if use("alt") {
		opts.Alt = bisectFlags.alt
	}
	if use("host") {
		opts.Host = bisectFlags.host
	}
	if use("target") {
		opts.Target = bisectFlags.target
	}
	if use("preserve") {
		opts.Preserve = bisectFlags.preserve
	}
	if use("preserve-target") {
		opts.PreserveTarget = bisectFlags.preserveTarget
	}
	if use("with-src") {
		opts.WithSource = bisectFlags.withSrc
	}
	if use("with-dev") {
		opts.WithDev = bisectFlags.withDev
	}
	if use("component") {
		opts.Components = bisectFlags.components
	}
	if use("test-dir") {
		opts.TestDir = bisectFlags.testDir
	}
	if use("prompt") {
		opts.Prompt = bisectFlags.prompt
	}
	if use("prompt-port") {
		opts.PromptPort = bisectFlags.promptPort
	}
	if use("timeout") {
		opts.Timeout = time.Duration(bisectFlags.timeoutSeconds) * time.Second
	}
	if use("by-commit") {
		opts.ByCommit = bisectFlags.byCommit
	}
	if use("access") {
		opts.Access = bisectFlags.access
	}
	if use("force-install") {
		opts.ForceInstall = bisectFlags.forceInstall
	}
	if use("script") {
		opts.Script = bisectFlags.script
	}
	if use("without-cargo") {
		opts.WithoutCargo = bisectFlags.withoutCargo
	}
	if bisectFlags.install != "" {
		b := bisect.ParseBound(bisectFlags.install)
		opts.Install = &b
	}

	// Everything after -- goes to cargo (or the script)
	if i := cmd.ArgsLenAtDash(); i >= 0 {
		opts.Args = args[i:]
	} else if len(args) > 0 {
		opts.Args = args
	}
	opts.Verbosity = verbosity

	return opts, nil
}

func init() {
	rootCmd.AddCommand(bisectCmd)

	f := bisectCmd.Flags()
	f.StringVar(&bisectFlags.config, "config", "", "Load options from a yaml job file")
	f.StringVar(&bisectFlags.start, "start", "", "Left bound for search (*without* regression): date (YYYY-MM-DD), git tag (e.g. 1.58.0) or commit SHA")
	f.StringVar(&bisectFlags.end, "end", "", "Right bound for search (*with* regression): date (YYYY-MM-DD), git tag (e.g. 1.58.0) or commit SHA")
	f.StringVar(&bisectFlags.regress, "regress", string(bisect.RegressError), "Custom regression definition (error, success, ice, non-ice, non-error)")
	f.BoolVarP(&bisectFlags.alt, "alt", "a", false, "Download the alt build instead of normal build")
	f.StringVar(&bisectFlags.host, "host", "", "Host triple for the compiler (auto-detected from rustc by default)")
	f.StringVar(&bisectFlags.target, "target", "", "Cross-compilation target platform")
	f.BoolVar(&bisectFlags.preserve, "preserve", false, "Preserve the downloaded artifacts")
	f.BoolVar(&bisectFlags.preserveTarget, "preserve-target", false, "Preserve the target directory used for builds")
	f.BoolVar(&bisectFlags.withSrc, "with-src", false, "Download rust-src")
	f.BoolVar(&bisectFlags.withDev, "with-dev", false, "Download rustc-dev")
	f.StringSliceVarP(&bisectFlags.components, "component", "c", nil, "Additional components to install")
	f.StringVar(&bisectFlags.testDir, "test-dir", ".", "Root directory for tests")
	f.BoolVar(&bisectFlags.prompt, "prompt", false, "Manually evaluate for regression with prompts")
	f.IntVar(&bisectFlags.promptPort, "prompt-port", 0, "Serve verdict prompts over HTTP on this port instead of the terminal")
	f.IntVarP(&bisectFlags.timeoutSeconds, "timeout", "t", 0, "Assume failure after specified number of seconds (for bisecting hangs)")
	f.BoolVar(&bisectFlags.byCommit, "by-commit", false, "Bisect via commit artifacts")
	f.StringVar(&bisectFlags.access, "access", "checkout", "How to access the rust git repository (checkout, github)")
	f.StringVar(&bisectFlags.install, "install", "", "Install the given artifact and exit")
	f.BoolVar(&bisectFlags.forceInstall, "force-install", false, "Force installation over existing artifacts")
	f.StringVar(&bisectFlags.script, "script", "", "Script replacement for the cargo build command")
	f.BoolVar(&bisectFlags.withoutCargo, "without-cargo", false, "Do not install cargo")
}
