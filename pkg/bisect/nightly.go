package bisect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

// stdFloor is the first nightly shipping -std packages; nothing before it can
// be installed.
var stdFloor = time.Date(2015, 10, 20, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// A nightlyFinder walks backwards from a start date looking for a passing
// nightly: two-day jumps within the first week, weekly jumps up to the
// seventh week, then two-week jumps.
type nightlyFinder struct {
	start   time.Time
	current time.Time
}

func newNightlyFinder(start time.Time) *nightlyFinder {
	return &nightlyFinder{start: start, current: start}
}

func (f *nightlyFinder) next() time.Time {
	distance := int(f.start.Sub(f.current) / day)

	jump := 2
	switch {
	case distance < 7:
	case distance < 49:
		jump = 7
	default:
		jump = 14
	}

	f.current = f.current.Add(-time.Duration(jump) * day)
	return f.current
}

func (c *Config) startDate() time.Time {
	if c.Opts.Start != nil && c.Opts.Start.IsDate() {
		return c.Opts.Start.Date
	}
	return c.endDate()
}

func (c *Config) endDate() time.Time {
	if c.Opts.End != nil && c.Opts.End.IsDate() {
		return c.Opts.End.Date
	}
	if date, ok := toolchain.DefaultNightlyDate(); ok {
		return date
	}
	return time.Now().UTC().Truncate(day)
}

// A BisectionResult is a searched range together with the index of the first
// regressed toolchain.
type BisectionResult struct {
	Searched []toolchain.Toolchain
	Found    int
}

// bisectNightlies finds the nightly that introduced the regression. When no
// start bound is given the finder iterator probes backwards until a passing
// nightly turns up.
func (c *Config) bisectNightlies(ctx context.Context) (*BisectionResult, error) {
	if c.Opts.Alt {
		return nil, errors.New("cannot bisect nightlies with --alt: not supported")
	}

	nightlyDate := c.startDate()
	lastFailure := c.endDate()
	hasStart := c.Opts.Start != nil

	var firstSuccess *time.Time
	finder := newNightlyFinder(nightlyDate)

	// Probe nightlies to validate the start bound (when given) and to find
	// the left edge of the bisection range, never reaching past the first
	// nightly that shipped -std packages.
	for nightlyDate.After(stdFloor) {
		t := c.newToolchain(toolchain.NightlySpec(nightlyDate))
		if t.IsCurrentNightly() {
			c.Log.Infof("Checking %s from the currently installed default nightly toolchain as the last failure", t)
		}

		c.Log.Info("Checking the start of the range to find a passing nightly")
		r, err := c.installAndTest(ctx, t)
		switch {
		case err == nil && r == No:
			// No regression here: left edge of the bisection range.
			date := nightlyDate
			firstSuccess = &date
		case err == nil && hasStart:
			return nil, fmt.Errorf("the start of the range (%s) must not reproduce the regression", t)
		case err == nil:
			lastFailure = nightlyDate
			nightlyDate = finder.next()
		case errors.Is(err, toolchain.ErrNotFound):
			// Probably a skipped nightly, roll back one day and retry
			nightlyDate = nightlyDate.Add(-day)
			c.Log.Warnf("*** unable to install %s. rolling back one day and trying again...", t)
			if hasStart {
				return nil, fmt.Errorf("could not find %s", t)
			}
		default:
			return nil, err
		}
		if firstSuccess != nil {
			break
		}
	}

	if firstSuccess == nil {
		return nil, errors.New("could not find a nightly that built")
	}

	c.Log.Info("Checking the end of the range to verify it regresses")
	tEnd := c.newToolchain(toolchain.NightlySpec(lastFailure))
	r, err := c.installAndTest(ctx, tEnd)
	if err != nil {
		return nil, err
	}
	if r == No {
		return nil, fmt.Errorf("the end of the range (%s) does not reproduce the regression", tEnd)
	}

	toolchains := c.nightliesBetween(*firstSuccess, lastFailure)
	found := c.bisectToRegression(ctx, toolchains)

	return &BisectionResult{Searched: toolchains, Found: found}, nil
}

// nightliesBetween returns one toolchain per day from a through b, inclusive.
func (c *Config) nightliesBetween(a, b time.Time) []toolchain.Toolchain {
	var toolchains []toolchain.Toolchain
	for date := a; !date.After(b); date = date.Add(day) {
		toolchains = append(toolchains, c.newToolchain(toolchain.NightlySpec(date)))
	}
	return toolchains
}

// bisectToRegression runs the least-satisfying search over the candidate
// toolchains, mapping probe failures to Unknown.
func (c *Config) bisectToRegression(ctx context.Context, toolchains []toolchain.Toolchain) int {
	return LeastSatisfying(toolchains, func(t toolchain.Toolchain, remaining, estimate int) Satisfies {
		c.Log.Infof("%d versions remaining to test after this (roughly %d steps)", remaining, estimate)
		r, err := c.installAndTest(ctx, t)
		if err != nil {
			c.Log.Warnf("Could not evaluate %s: %v", t, err)
			return Unknown
		}
		return r
	})
}
