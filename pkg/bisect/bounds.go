package bisect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/kraktus/cargo-bisect-rustc/internal/repo"
	"github.com/kraktus/cargo-bisect-rustc/pkg/toolchain"
)

// A Bound is one end of the search range: a nightly date, a commit SHA, or a
// release tag such as 1.62.0 (which gets translated to a date before
// bisection starts).
type Bound struct {
	Date   time.Time // Set for date bounds
	Commit string    // Set for commit and tag bounds
}

// ParseBound interprets s as a YYYY-MM-DD date if possible and as a commit
// ref otherwise.
func ParseBound(s string) Bound {
	if date, err := time.Parse(toolchain.YYYYMMDD, s); err == nil {
		return Bound{Date: date}
	}
	return Bound{Commit: s}
}

// IsDate reports whether the bound is a nightly date.
func (b Bound) IsDate() bool {
	return b.Commit == ""
}

// isTag reports whether a commit bound actually looks like a release tag.
// Short dotted refs like 1.62 count as tags; a SHA never contains a dot.
func (b Bound) isTag() bool {
	if b.IsDate() {
		return false
	}
	if _, err := semver.StrictNewVersion(b.Commit); err == nil {
		return true
	}
	if !strings.Contains(b.Commit, ".") {
		return false
	}
	_, err := semver.NewVersion(b.Commit)
	return err == nil
}

func (b Bound) String() string {
	if b.IsDate() {
		return b.Date.Format(toolchain.YYYYMMDD)
	}
	return b.Commit
}

// SHA resolves the bound to a commit hash. Date bounds are resolved through
// the nightly server's per-day manifest.
func (b Bound) SHA(ctx context.Context, client *toolchain.Client) (string, error) {
	if b.IsDate() {
		return client.CommitHashForDate(ctx, b.Date)
	}
	return b.Commit, nil
}

// fixupBounds translates tag-like bounds (1.62.0) to date bounds so that
// bisecting works for releases older than the artifact expiry window. If
// either bound is an actual commit, both are left untouched.
func fixupBounds(ctx context.Context, accessor repo.Accessor, start, end *Bound, log *logrus.Logger) error {
	isDatelike := func(b *Bound) bool {
		return b == nil || b.IsDate() || b.isTag()
	}
	if !isDatelike(start) || !isDatelike(end) {
		return nil
	}
	fixup := func(which string, b *Bound) error {
		if b == nil || !b.isTag() {
			return nil
		}
		date, err := accessor.TagDate(ctx, b.Commit)
		if err != nil {
			return errors.Join(fmt.Errorf("translating --%s=%s to a date failed", which, b.Commit), err)
		}
		log.Infof("Translating --%s=%s to %s", which, b.Commit, date.Format(toolchain.YYYYMMDD))
		*b = Bound{Date: date}
		return nil
	}
	if err := fixup("start", start); err != nil {
		return err
	}
	return fixup("end", end)
}

// checkBounds rejects ranges that are inverted or reach into the future.
func checkBounds(start, end *Bound, now time.Time) error {
	today := now.UTC().Truncate(24 * time.Hour)
	if start != nil && end != nil && start.IsDate() && end.IsDate() && end.Date.Before(start.Date) {
		return fmt.Errorf("end should be after start, got start: %s and end %s", start, end)
	}
	if start != nil && start.IsDate() && start.Date.After(today) {
		return fmt.Errorf("start date should be on or before current date, got start date request: %s and current date is %s",
			start, today.Format(toolchain.YYYYMMDD))
	}
	if end != nil && end.IsDate() && end.Date.After(today) {
		return fmt.Errorf("end date should be on or before current date, got end date request: %s and current date is %s",
			end, today.Format(toolchain.YYYYMMDD))
	}
	return nil
}
