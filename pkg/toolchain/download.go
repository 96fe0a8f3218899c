package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	// NightlyServer hosts the dated nightly release archives.
	NightlyServer = "https://static.rust-lang.org/dist"

	// CIServer hosts per-commit builds of the compiler.
	CIServer = "https://s3-us-west-1.amazonaws.com/rust-lang-ci2/rustc-builds"

	// CIServerAlt hosts per-commit alt builds (extra debug assertions).
	CIServerAlt = "https://s3-us-west-1.amazonaws.com/rust-lang-ci2/rustc-builds-alt"
)

// ErrNotFound is reported when the archive server has no artifact at the
// requested location, e.g. a nightly that was never released or a CI build
// that already expired.
var ErrNotFound = errors.New("artifact not found")

// maxConcurrentDownloads caps how many component tarballs are fetched at once.
const maxConcurrentDownloads = 4

// A Client downloads build artifacts from the archive servers.
type Client struct {
	HTTP *http.Client

	// Server roots, overridable for tests.
	NightlyRoot string
	CIRoot      string
	CIAltRoot   string

	// MaxRetries bounds the retry attempts per download.
	MaxRetries uint64

	Log *logrus.Logger

	sem *semaphore.Weighted
}

// NewClient returns a download client with the production server roots.
func NewClient(log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Client{
		HTTP:        &http.Client{Timeout: 10 * time.Minute},
		NightlyRoot: NightlyServer,
		CIRoot:      CIServer,
		CIAltRoot:   CIServerAlt,
		MaxRetries:  4,
		Log:         log,
		sem:         semaphore.NewWeighted(maxConcurrentDownloads),
	}
}

func (c *Client) ciRoot(alt bool) string {
	if alt {
		return c.CIAltRoot
	}
	return c.CIRoot
}

// Get fetches the given URL, retrying transient failures with exponential
// backoff. A 404 response is not retried and yields ErrNotFound.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		switch {
		case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusForbidden:
			// The CI bucket answers 403 for expired objects
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, url))
		case res.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %s fetching %s", res.Status, url)
		}
		body, err = io.ReadAll(res.Body)
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.MaxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return body, nil
}

// DownloadVerified downloads the tarball at url into dest, verifying its
// contents against the .sha256 file published next to it. The payload is
// streamed to disk and hashed on the way through; component tarballs run to
// hundreds of megabytes and must not be buffered whole.
func (c *Client) DownloadVerified(ctx context.Context, url, dest string) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	sum, err := c.Get(ctx, url+".sha256")
	if err != nil {
		return errors.Join(fmt.Errorf("fetching checksum of %s failed", url), err)
	}
	// The .sha256 file holds "<hex>  <filename>"
	fields := strings.Fields(string(sum))
	if len(fields) == 0 {
		return fmt.Errorf("malformed checksum file for %s", url)
	}
	want := digest.NewDigestFromEncoded(digest.SHA256, fields[0])
	if err := want.Validate(); err != nil {
		return errors.Join(fmt.Errorf("malformed checksum file for %s", url), err)
	}

	c.Log.Infof("Downloading %s", url)
	part := dest + ".part"
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		switch {
		case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, url))
		case res.StatusCode != http.StatusOK:
			return fmt.Errorf("unexpected status %s fetching %s", res.Status, url)
		}

		f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return backoff.Permanent(err)
		}
		digester := digest.SHA256.Digester()
		_, err = io.Copy(io.MultiWriter(f, digester.Hash()), res.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(part)
			return err
		}
		if got := digester.Digest(); got != want {
			os.Remove(part)
			return backoff.Permanent(fmt.Errorf("checksum mismatch for %s: got %s, want %s", url, got, want))
		}
		return os.Rename(part, dest)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.MaxRetries), ctx)
	return backoff.Retry(op, bo)
}

// CommitHashForDate resolves a nightly date to the rust-lang/rust commit it
// was built from, via the per-day manifest on the nightly server.
func (c *Client) CommitHashForDate(ctx context.Context, date time.Time) (string, error) {
	url := fmt.Sprintf("%s/%s/channel-rust-nightly-git-commit-hash.txt", c.NightlyRoot, date.Format(YYYYMMDD))
	c.Log.Infof("Fetching %s", url)
	body, err := c.Get(ctx, url)
	if err != nil {
		return "", errors.Join(fmt.Errorf("no nightly manifest for %s", date.Format(YYYYMMDD)), err)
	}
	commit := strings.TrimSpace(string(body))
	c.Log.Infof("Converted %s to %s", date.Format(YYYYMMDD), commit)
	return commit, nil
}

var nightlyToolchainRE = regexp.MustCompile(`nightly-(\d{4}-\d{2}-\d{2})`)

// DefaultNightlyDate returns the date of the currently active default nightly
// toolchain, if one is installed.
func DefaultNightlyDate() (time.Time, bool) {
	out, err := exec.Command("rustup", "show", "active-toolchain").Output()
	if err != nil {
		return time.Time{}, false
	}
	return parseNightlyDate(string(out))
}

func parseNightlyDate(s string) (time.Time, bool) {
	m := nightlyToolchainRE.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	date, err := time.Parse(YYYYMMDD, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
