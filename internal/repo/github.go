package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// GithubAPI is the REST endpoint commit metadata is fetched from when running
// with --access github.
const GithubAPI = "https://api.github.com"

const githubRepo = "rust-lang/rust"

// GithubAccessor reads commit history through the GitHub REST API, avoiding a
// multi-gigabyte local clone. Requests are authenticated with GITHUB_TOKEN
// when set, which raises the rate limit considerably.
type GithubAccessor struct {
	BaseURL string // API root, overridable for tests
	Token   string

	HTTP *http.Client

	log *logrus.Logger
}

// NewGithubAccessor returns an accessor against api.github.com, picking up
// GITHUB_TOKEN from the environment.
func NewGithubAccessor(log *logrus.Logger) *GithubAccessor {
	return &GithubAccessor{
		BaseURL: GithubAPI,
		Token:   os.Getenv("GITHUB_TOKEN"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
		Message string `json:"message"`
	} `json:"commit"`
}

func (c githubCommit) toCommit() Commit {
	summary, _, _ := strings.Cut(c.Commit.Message, "\n")
	return Commit{
		SHA:     c.SHA,
		Date:    c.Commit.Committer.Date.UTC(),
		Summary: summary,
	}
}

func (g *GithubAccessor) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "cargo-bisect-rustc")
	if g.Token != "" {
		req.Header.Set("Authorization", "token "+g.Token)
	}

	g.log.Debugf("GET %s", url)
	res, err := g.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("github api returned %s for %s", res.Status, url)
	}
	return json.NewDecoder(res.Body).Decode(v)
}

func (g *GithubAccessor) Commit(ctx context.Context, ref string) (*Commit, error) {
	if ref == "origin/master" {
		ref = "master"
	}
	var gc githubCommit
	url := fmt.Sprintf("%s/repos/%s/commits/%s", g.BaseURL, githubRepo, ref)
	if err := g.getJSON(ctx, url, &gc); err != nil {
		return nil, errors.Join(fmt.Errorf("resolving %s via github failed", ref), err)
	}
	commit := gc.toCommit()
	return &commit, nil
}

func (g *GithubAccessor) CommitsBetween(ctx context.Context, startSHA, endSHA string) ([]Commit, error) {
	start, err := g.Commit(ctx, startSHA)
	if err != nil {
		return nil, err
	}
	commits := []Commit{*start}

	// The compare endpoint lists commits oldest first, paginated.
	for page := 1; ; page++ {
		var cmp struct {
			Commits      []githubCommit `json:"commits"`
			TotalCommits int            `json:"total_commits"`
		}
		url := fmt.Sprintf("%s/repos/%s/compare/%s...%s?per_page=100&page=%d", g.BaseURL, githubRepo, startSHA, endSHA, page)
		if err := g.getJSON(ctx, url, &cmp); err != nil {
			return nil, errors.Join(fmt.Errorf("comparing %s and %s via github failed", startSHA, endSHA), err)
		}
		for _, gc := range cmp.Commits {
			commits = append(commits, gc.toCommit())
		}
		if len(commits)-1 >= cmp.TotalCommits || len(cmp.Commits) == 0 {
			break
		}
	}

	// Only keep the first-parent chain: the compare endpoint includes the
	// commits of merged branches, which have no published CI artifacts.
	return firstParentChain(commits), nil
}

func (g *GithubAccessor) TagDate(ctx context.Context, tag string) (time.Time, error) {
	commit, err := g.Commit(ctx, tag)
	if err != nil {
		return time.Time{}, err
	}
	return commit.Date, nil
}

// firstParentChain filters a chronologically ordered commit list down to the
// merge commits landed by bors, which are the revisions CI builds artifacts
// for. Non-merge tool commits (summary not starting with "Auto merge" or
// "Merge") are dropped unless nothing matches, in which case the list is
// returned as-is.
func firstParentChain(commits []Commit) []Commit {
	if len(commits) == 0 {
		return commits
	}
	chain := commits[:1:1]
	for _, c := range commits[1:] {
		if strings.HasPrefix(c.Summary, "Auto merge of") || strings.HasPrefix(c.Summary, "Merge") {
			chain = append(chain, c)
		}
	}
	if len(chain) == 1 && len(commits) > 1 {
		return commits
	}
	// The range endpoint must survive filtering, the drivers assert on it.
	if chain[len(chain)-1].SHA != commits[len(commits)-1].SHA {
		chain = append(chain, commits[len(commits)-1])
	}
	return chain
}
