package toolchain

import (
	"fmt"
	"sort"
	"time"
)

// YYYYMMDD is the date layout used by the nightly archive server.
const YYYYMMDD = "2006-01-02"

// A Spec identifies a single downloadable rustc build, either a dated nightly
// release or a per-commit CI build.
type Spec struct {
	Date   time.Time // The nightly date. Zero for CI builds
	Commit string    // The commit SHA of the CI build. Empty for nightlies
	Alt    bool      // Whether to use the alt (extra debug assertions) CI build
}

// NightlySpec returns the spec of the nightly released on the given date.
func NightlySpec(date time.Time) Spec {
	return Spec{Date: date}
}

// CISpec returns the spec of the CI build of the given commit.
func CISpec(commit string, alt bool) Spec {
	return Spec{Commit: commit, Alt: alt}
}

// IsNightly reports whether this spec refers to a dated nightly release.
func (s Spec) IsNightly() bool {
	return s.Commit == ""
}

func (s Spec) String() string {
	if s.IsNightly() {
		return "nightly-" + s.Date.Format(YYYYMMDD)
	}
	return s.Commit
}

// A Toolchain is a spec together with the platform it should be installed for.
type Toolchain struct {
	Spec Spec

	Host string // Host triple the compiler runs on

	StdTargets []string // Targets for which rust-std gets installed
}

// New returns a toolchain for the given spec, deduplicating the std targets.
func New(spec Spec, host string, stdTargets []string) Toolchain {
	targets := append([]string(nil), stdTargets...)
	sort.Strings(targets)
	targets = dedup(targets)
	return Toolchain{
		Spec:       spec,
		Host:       host,
		StdTargets: targets,
	}
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || sorted[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}

// RustupName returns the directory name this toolchain gets installed under
// inside the rustup toolchains directory.
func (t Toolchain) RustupName() string {
	if t.Spec.IsNightly() {
		return fmt.Sprintf("bisector-nightly-%s-%s", t.Spec.Date.Format(YYYYMMDD), t.Host)
	}
	if t.Spec.Alt {
		return fmt.Sprintf("bisector-ci-alt-%s-%s", t.Spec.Commit, t.Host)
	}
	return fmt.Sprintf("bisector-ci-%s-%s", t.Spec.Commit, t.Host)
}

func (t Toolchain) String() string {
	return t.Spec.String()
}
