// Package models holds the catalog records persisted in Postgres.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Module kinds.
const (
	ModuleKindProvider = "provider"
	ModuleKindStd      = "std"
)

// Module is a registered module name bound to a GitHub repository.
type Module struct {
	Name        string    `json:"name"`
	Kind        string    `json:"type"`
	RepoID      int64     `json:"repo_id"`
	Owner       string    `json:"owner"`
	Repo        string    `json:"repo"`
	Description string    `json:"description"`
	StarCount   int       `json:"star_count"`
	IsUnlisted  bool      `json:"is_unlisted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Joined fields (not stored in the modules table)
	LatestVersion *string  `json:"latest_version"`
	Versions      []string `json:"versions,omitempty"`
}

// ModuleVersion is one published version of a module. (Module, Major, Minor,
// Patch) is unique.
type ModuleVersion struct {
	ID         int64           `json:"id"`
	Module     string          `json:"module"`
	Entrypoint string          `json:"entrypoint"`
	Major      uint64          `json:"major"`
	Minor      uint64          `json:"minor"`
	Patch      uint64          `json:"patch"`
	LinuxX86   bool            `json:"linux_x86"`
	MacOSX86   bool            `json:"macos_x86"`
	WindowsX86 bool            `json:"windows_x86"`
	Doc        json.RawMessage `json:"doc"`
	Readme     *string         `json:"readme"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Version renders the MAJOR.MINOR.PATCH identity.
func (v *ModuleVersion) Version() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MarshalJSON adds the rendered version string to the stored columns.
func (v ModuleVersion) MarshalJSON() ([]byte, error) {
	type plain ModuleVersion
	doc := v.Doc
	if len(doc) == 0 {
		doc = json.RawMessage("[]")
	}
	p := plain(v)
	p.Doc = doc
	return json.Marshal(struct {
		plain
		Version string `json:"version"`
	}{plain: p, Version: v.Version()})
}
