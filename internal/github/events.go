// Package github holds the GitHub webhook payloads the registry accepts and a
// small REST client for listing historical releases.
package github

import (
	"strings"
)

// Webhook event names carried in the X-GitHub-Event header.
const (
	EventPing    = "ping"
	EventRelease = "release"
)

// ActionReleased is the only release action that triggers a build.
const ActionReleased = "released"

// Owner is a repository owner or webhook sender.
type Owner struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Repository is the repository object embedded in webhook payloads and in
// REST responses.
type Repository struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	FullName        string  `json:"full_name"`
	Private         bool    `json:"private"`
	Owner           Owner   `json:"owner"`
	Description     *string `json:"description"`
	StargazersCount int     `json:"stargazers_count"`
}

// OwnerRepo splits full_name into owner and repository name. It falls back to
// the owner login and name fields when full_name is malformed.
func (r Repository) OwnerRepo() (string, string) {
	if owner, repo, ok := strings.Cut(r.FullName, "/"); ok && owner != "" && repo != "" {
		return owner, repo
	}
	return r.Owner.Login, r.Name
}

// DescriptionText returns the description or "" when GitHub sent null.
func (r Repository) DescriptionText() string {
	if r.Description == nil {
		return ""
	}
	return *r.Description
}

// Asset is a file attached to a release.
type Asset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	URL                string `json:"url"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type"`
	Size               int64  `json:"size"`
}

// Release is a published GitHub release.
type Release struct {
	ID         int64   `json:"id"`
	TagName    string  `json:"tag_name"`
	Name       string  `json:"name"`
	Draft      bool    `json:"draft"`
	Prerelease bool    `json:"prerelease"`
	Assets     []Asset `json:"assets"`
}

// PingEvent is sent when a webhook is created.
type PingEvent struct {
	Zen        string     `json:"zen"`
	HookID     int64      `json:"hook_id"`
	Repository Repository `json:"repository"`
	Sender     Owner      `json:"sender"`
}

// ReleaseEvent is sent for every release activity.
type ReleaseEvent struct {
	Action     string     `json:"action"`
	Release    Release    `json:"release"`
	Repository Repository `json:"repository"`
	Sender     Owner      `json:"sender"`
}
