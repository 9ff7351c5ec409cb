package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/nutshimit/mashin-registry/internal/config"
	"github.com/nutshimit/mashin-registry/internal/fetch"
)

const (
	defaultAPIURL   = "https://api.github.com"
	releasesPerPage = 100
	// maxReleasePages bounds a backfill at 1000 releases.
	maxReleasePages = 10
	maxPageBytes    = 8 << 20
)

// ReleaseLister returns every release of a repository.
type ReleaseLister interface {
	ListReleases(ctx context.Context, owner, repo string) ([]Release, error)
}

// Client talks to the GitHub REST API through a fetch.Getter.
type Client struct {
	getter fetch.Getter
	apiURL string
}

// NewClient creates a client against apiURL (https://api.github.com when empty).
func NewClient(getter fetch.Getter, apiURL string) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{getter: getter, apiURL: strings.TrimRight(apiURL, "/")}
}

// NewAPIFetcher builds the fetcher used for API calls. With a token configured
// every request carries it through an oauth2 transport; the fetcher is kept
// separate from the archive fetcher so the token never leaves the API host.
func NewAPIFetcher(cfg config.GitHubConfig) *fetch.Fetcher {
	opts := []fetch.Option{
		fetch.WithAuthFunc(func(string) (string, string) {
			return "X-GitHub-Api-Version", "2022-11-28"
		}),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, fetch.WithTimeout(cfg.RequestTimeout))
	}
	if cfg.Token != "" {
		opts = append(opts, fetch.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})))
	}
	return fetch.NewFetcher(opts...)
}

// ListReleases pages through /repos/{owner}/{repo}/releases, 100 at a time,
// until a short page is returned.
func (c *Client) ListReleases(ctx context.Context, owner, repo string) ([]Release, error) {
	var all []Release
	for page := 1; page <= maxReleasePages; page++ {
		endpoint := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d&page=%d",
			c.apiURL, url.PathEscape(owner), url.PathEscape(repo), releasesPerPage, page)

		body, err := fetch.ReadAll(ctx, c.getter, endpoint, maxPageBytes)
		if err != nil {
			return nil, fmt.Errorf("github: list releases: %w", err)
		}

		var releases []Release
		if err := json.Unmarshal(body, &releases); err != nil {
			return nil, fmt.Errorf("github: decode releases: %w", err)
		}
		all = append(all, releases...)

		if len(releases) < releasesPerPage {
			break
		}
	}
	return all, nil
}
