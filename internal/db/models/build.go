package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Build statuses. A build only ever moves from queued to one terminal state.
const (
	BuildStatusQueued  = "queued"
	BuildStatusSuccess = "success"
	BuildStatusError   = "error"
)

// Build tracks one release being processed. It is also the queue message body.
type Build struct {
	ID        string        `db:"id" json:"id"`
	Module    string        `db:"module" json:"module"`
	Version   string        `db:"version" json:"version"`
	Status    string        `db:"status" json:"status"`
	Message   string        `db:"message" json:"message"`
	Assets    ReleaseAssets `db:"assets" json:"assets"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// ReleaseAsset is the subset of a GitHub release asset the build needs.
type ReleaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	ContentType        string `json:"content_type,omitempty"`
	Size               int64  `json:"size,omitempty"`
}

// ReleaseAssets is stored as a JSONB array.
type ReleaseAssets []ReleaseAsset

// Value implements driver.Valuer.
func (a ReleaseAssets) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal([]ReleaseAsset(a))
	if err != nil {
		return nil, fmt.Errorf("failed to encode release assets: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (a *ReleaseAssets) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = ReleaseAssets{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ReleaseAssets", src)
	}
	var out []ReleaseAsset
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode release assets: %w", err)
	}
	if out == nil {
		out = []ReleaseAsset{}
	}
	*a = out
	return nil
}

// Names lists the asset file names.
func (a ReleaseAssets) Names() []string {
	names := make([]string, len(a))
	for i, asset := range a {
		names[i] = asset.Name
	}
	return names
}

// Find returns the first asset with exactly this name.
func (a ReleaseAssets) Find(name string) (ReleaseAsset, bool) {
	for _, asset := range a {
		if asset.Name == name {
			return asset, true
		}
	}
	return ReleaseAsset{}, false
}
