package bisect

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"

	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

// Outcome is the classification of one toolchain run.
type Outcome int

const (
	// Baseline means the run behaved like the start of the range.
	Baseline Outcome = iota
	// Regressed means the run reproduced the regression.
	Regressed
)

func (o Outcome) String() string {
	if o == Regressed {
		return "Regressed"
	}
	return "Baseline"
}

// RegressOn selects what counts as a regression, mirroring the --regress
// flag.
type RegressOn string

const (
	// RegressError treats a non-success rustc exit as regressed. The
	// default, covering both compile errors and ICEs.
	RegressError RegressOn = "error"
	// RegressSuccess treats a successful compile as regressed, for
	// bisecting when a bug was fixed.
	RegressSuccess RegressOn = "success"
	// RegressIce treats only an internal compiler error as regressed.
	RegressIce RegressOn = "ice"
	// RegressNonIce treats the absence of an ICE as regressed, for finding
	// when an ICE was fixed.
	RegressNonIce RegressOn = "non-ice"
	// RegressNonError treats everything but a clean rejection as regressed,
	// for ill-formed programs that stopped being rejected.
	RegressNonError RegressOn = "non-error"
)

// ParseRegressOn validates a --regress flag value.
func ParseRegressOn(s string) (RegressOn, error) {
	switch RegressOn(s) {
	case RegressError, RegressSuccess, RegressIce, RegressNonIce, RegressNonError:
		return RegressOn(s), nil
	}
	return "", fmt.Errorf("%q is not a valid regression definition (error, success, ice, non-ice, non-error)", s)
}

// sawICE scans compiler output for the internal-compiler-error markers.
func sawICE(stderr string) bool {
	return strings.Contains(stderr, "error: internal compiler error") ||
		strings.Contains(stderr, "' has overflowed its stack")
}

// Classify maps a process result to an outcome under this regression
// definition.
func (r RegressOn) Classify(res *toolchain.ProcessResult) Outcome {
	ice := sawICE(res.Stderr)
	switch r {
	case RegressSuccess:
		if res.Success {
			return Regressed
		}
		return Baseline
	case RegressIce:
		if ice {
			return Regressed
		}
		return Baseline
	case RegressNonIce:
		if ice {
			return Baseline
		}
		return Regressed
	case RegressNonError:
		if res.Success || ice {
			return Regressed
		}
		return Baseline
	default: // RegressError
		if res.Success {
			return Baseline
		}
		return Regressed
	}
}

// A Decider turns a toolchain run into a verdict. Implementations exist for
// automatic classification, terminal prompts, and the HTTP verdict server.
type Decider interface {
	Decide(t toolchain.Toolchain, res *toolchain.ProcessResult) (Outcome, error)
}

// AutoDecider classifies runs purely from the process outcome.
type AutoDecider struct {
	Regress RegressOn

	Log *logrus.Logger
}

func (d AutoDecider) Decide(t toolchain.Toolchain, res *toolchain.ProcessResult) (Outcome, error) {
	outcome := d.Regress.Classify(res)
	d.Log.Debugf("Classified run of %s as %s (success: %t, regress mode: %s)", t, outcome, res.Success, d.Regress)
	return outcome, nil
}

// PromptDecider shows the run's output and asks the user for the verdict.
type PromptDecider struct {
	Log *logrus.Logger
}

func (d PromptDecider) Decide(t toolchain.Toolchain, res *toolchain.ProcessResult) (Outcome, error) {
	fmt.Println(res.Stdout)
	fmt.Println(res.Stderr)

	prompt := promptui.Select{
		Label: fmt.Sprintf("Verdict for %s", t),
		Items: []string{"Baseline (good)", "Regressed (bad)"},
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return Baseline, fmt.Errorf("verdict prompt failed - %v", err)
	}
	if idx == 1 {
		return Regressed, nil
	}
	return Baseline, nil
}
