package bisect

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

const reportHeader = `==================================================================================
= Please file this regression report on the rust-lang/rust GitHub repository     =
=        New issue: https://github.com/rust-lang/rust/issues/new                 =
=     Known issues: https://github.com/rust-lang/rust/issues                     =
= Copy and paste the text below into the issue report thread.  Thanks!           =
==================================================================================`

// Bisect runs the configured bisection. Commit-bounded searches go straight
// to the CI driver; date-bounded searches find the regressed nightly first
// and then descend into its one-day commit window.
func (c *Config) Bisect(ctx context.Context) error {
	if c.IsCommit {
		result, err := c.bisectCI(ctx)
		if err != nil {
			return err
		}
		c.printResults(ctx, result)
		return nil
	}

	nightlyResult, err := c.bisectNightlies(ctx)
	if err != nil {
		return err
	}
	c.printResults(ctx, nightlyResult)

	regressed := nightlyResult.Searched[nightlyResult.Found]
	if !regressed.Spec.IsNightly() {
		return nil
	}
	date := regressed.Spec.Date
	previous := date.Add(-day)

	workingCommit, err := Bound{Date: previous}.SHA(ctx, c.Client)
	if err != nil {
		return err
	}
	badCommit, err := Bound{Date: date}.SHA(ctx, c.Client)
	if err != nil {
		return err
	}
	c.Log.Infof("Looking for the regression commit between %s and %s",
		previous.Format(toolchain.YYYYMMDD), date.Format(toolchain.YYYYMMDD))

	ciResult, err := c.bisectCIVia(ctx, workingCommit, badCommit)
	if err != nil {
		return err
	}
	c.printResults(ctx, ciResult)
	c.finalReport(nightlyResult, ciResult)
	return nil
}

// searchedRange widens the searched endpoints back out to the bounds the user
// asked for, so the report shows the full examined range.
func (c *Config) searchedRange(searched []toolchain.Toolchain) (toolchain.Spec, toolchain.Spec) {
	first := searched[0].Spec
	last := searched[len(searched)-1].Spec

	if !first.IsNightly() && !last.IsNightly() {
		return first, last
	}

	start := first
	if c.Opts.Start != nil && c.Opts.Start.IsDate() {
		start = toolchain.NightlySpec(c.Opts.Start.Date)
	}
	return start, toolchain.NightlySpec(c.endDate())
}

// printResults announces the regressed toolchain. When the search landed on
// the last candidate it gets re-verified first, since an all-unknown tail can
// push the result there without a successful probe.
func (c *Config) printResults(ctx context.Context, result *BisectionResult) {
	start, end := c.searchedRange(result.Searched)
	fmt.Fprintf(c.Out, "searched toolchains %s through %s\n", start, end)

	found := result.Searched[result.Found]
	if result.Found == len(result.Searched)-1 {
		c.Log.Info("Checking the last toolchain to determine the final result")
		r, err := c.installAndTest(ctx, found)
		if err != nil || r != Yes {
			fmt.Fprintln(c.Out, "error: The regression was not found. Expanding the bounds may help.")
			return
		}
	}

	banner := strings.Repeat("*", 80)
	fmt.Fprintf(c.Out, "\n\n%s\nRegression in %s\n%s\n\n", banner, found, banner)
}

// finalReport emits the markdown regression report for filing an issue.
func (c *Config) finalReport(nightly, ci *BisectionResult) {
	var b strings.Builder

	b.WriteString(reportHeader)
	b.WriteString("\n\n")

	start, end := c.searchedRange(nightly.Searched)
	fmt.Fprintf(&b, "searched nightlies: from %s to %s\n", start, end)
	fmt.Fprintf(&b, "regressed nightly: %s\n", nightly.Searched[nightly.Found])
	fmt.Fprintf(&b, "searched commit range: https://github.com/rust-lang/rust/compare/%s...%s\n",
		ci.Searched[0], ci.Searched[len(ci.Searched)-1])
	fmt.Fprintf(&b, "regressed commit: https://github.com/rust-lang/rust/commit/%s\n", ci.Searched[ci.Found])

	b.WriteString("\n<details>\n")
	fmt.Fprintf(&b, "<summary>bisected with <a href='%s'>cargo-bisect-rustc</a> v%s</summary>\n\n\n", Repository, Version)
	fmt.Fprintf(&b, "Host triple: %s\n", c.Opts.Host)
	b.WriteString("Reproduce with:\n```bash\n")
	fmt.Fprintf(&b, "cargo bisect-rustc %s\n", strings.Join(reproduceArgs(), " "))
	b.WriteString("```\n</details>\n")

	report := b.String()
	fmt.Fprintln(c.Out, report)
	if c.ReportSink != nil {
		c.ReportSink(report)
	}
}

// reproduceArgs reconstructs the command line, minus the binary name and the
// subcommand.
func reproduceArgs() []string {
	args := os.Args
	if len(args) > 0 {
		args = args[1:]
	}
	// The binary name itself ends in bisect-rustc, so only an exact match
	// identifies the subcommand.
	if len(args) > 0 && args[0] == "bisect-rustc" {
		args = args[1:]
	}
	return args
}
