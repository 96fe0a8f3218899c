// Package repo provides access to the rust-lang/rust commit history, either
// through a local git checkout or through the GitHub API.
package repo

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// A Commit is one revision of the compiler repository.
type Commit struct {
	SHA     string
	Date    time.Time
	Summary string
}

// An Accessor answers questions about the compiler's commit history.
type Accessor interface {
	// Commit resolves a ref (SHA, tag, branch) to a single commit.
	Commit(ctx context.Context, ref string) (*Commit, error)

	// CommitsBetween lists the first-parent commits after start up to and
	// including end, chronologically ordered, with the start commit
	// prepended.
	CommitsBetween(ctx context.Context, startSHA, endSHA string) ([]Commit, error)

	// TagDate returns the committer date of the given release tag.
	TagDate(ctx context.Context, tag string) (time.Time, error)
}

// Access modes selectable via the --access flag.
const (
	AccessCheckout = "checkout"
	AccessGithub   = "github"
)

// ForAccess returns the accessor for the given access mode.
func ForAccess(access string, log *logrus.Logger) (Accessor, error) {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	switch access {
	case AccessCheckout:
		return NewGitAccessor(log), nil
	case AccessGithub:
		return NewGithubAccessor(log), nil
	}
	return nil, fmt.Errorf("%q is not a valid access mode (checkout, github)", access)
}
