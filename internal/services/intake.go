// Package services implements the registry's business logic: validating
// GitHub webhook deliveries into queued builds, turning builds into published
// module versions, and backfilling the release history of newly registered
// modules. Handlers and workers are thin adapters around these types.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/github"
	"github.com/nutshimit/mashin-registry/internal/queue"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

// Response reasons returned to webhook senders.
const (
	InfoNotReleased       = "not a `released` action"
	InfoPrefixMismatch    = "ignoring event as the version does not match the version prefix"
	ReasonOwnership       = "module name is registered to a different repository"
	ReasonInvalidName     = "module name is not valid"
	ReasonForbiddenWord   = "found forbidden word in module name"
	ReasonInvalidType     = "invalid module type"
	ReasonInvalidVersion  = "invalid version"
	ReasonVersionExists   = "version already exists"
	ReasonNoNativeLibrary = "no `.so`, `dylib` or `.dll` files found in release"
)

// ModuleStore is the catalog surface used by intake and the build processor.
type ModuleStore interface {
	GetModule(ctx context.Context, name string) (*models.Module, error)
	UpsertModule(ctx context.Context, module *models.Module) error
	VersionExists(ctx context.Context, module string, major, minor, patch uint64) (bool, error)
	CreateVersion(ctx context.Context, version *models.ModuleVersion) (int64, error)
	SetLatestVersion(ctx context.Context, module string, versionID int64) (bool, error)
}

// BuildStore records builds and their terminal status.
type BuildStore interface {
	CreateBuild(ctx context.Context, build *models.Build) error
	SetBuildSuccess(ctx context.Context, id string) (bool, error)
	SetBuildError(ctx context.Context, id, message string) (bool, error)
}

// WordChecker screens new module names.
type WordChecker interface {
	IsForbidden(ctx context.Context, name string) (bool, error)
}

// RegistrationHook is notified after a module is registered for the first
// time. skipTag names the release that triggered registration, if any.
type RegistrationHook interface {
	ModuleRegistered(module *models.Module, opts Options, skipTag string)
}

// Options are the per-webhook settings carried in the delivery URL.
type Options struct {
	VersionPrefix string
	// Subdir is accepted for compatibility and not used.
	Subdir string
	// Type is "std", "provider" or empty (provider).
	Type string
}

// Outcome is a handled delivery. Success false with an Info message is an
// intentional no-op, not a failure.
type Outcome struct {
	Success bool
	Info    string
	Data    map[string]any
}

// RejectionError is a delivery refused with a 4xx status.
type RejectionError struct {
	Status int
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func reject(status int, reason string) error {
	return &RejectionError{Status: status, Reason: reason}
}

// AsRejection unwraps a RejectionError.
func AsRejection(err error) (*RejectionError, bool) {
	var r *RejectionError
	ok := errors.As(err, &r)
	return r, ok
}

// Intake validates webhook deliveries and queues builds.
type Intake struct {
	modules  ModuleStore
	builds   BuildStore
	words    WordChecker
	producer queue.Producer
	hook     RegistrationHook
	newID    func() string
}

// NewIntake creates an intake service. hook may be nil.
func NewIntake(modules ModuleStore, builds BuildStore, words WordChecker, producer queue.Producer, hook RegistrationHook) *Intake {
	return &Intake{
		modules:  modules,
		builds:   builds,
		words:    words,
		producer: producer,
		hook:     hook,
		newID:    uuid.NewString,
	}
}

// HandlePing registers or refreshes the module bound to the pinging repository.
func (s *Intake) HandlePing(ctx context.Context, module string, ev github.PingEvent, opts Options) (*Outcome, error) {
	owner, repo := ev.Repository.OwnerRepo()
	if _, err := s.checkAndUpdateModule(ctx, module, ev.Repository, opts, ""); err != nil {
		return nil, err
	}

	return &Outcome{
		Success: true,
		Data: map[string]any{
			"module":     module,
			"repository": owner + "/" + repo,
		},
	}, nil
}

// HandleRelease validates a release delivery and queues a build for it.
func (s *Intake) HandleRelease(ctx context.Context, module string, ev github.ReleaseEvent, opts Options) (*Outcome, error) {
	if ev.Action != github.ActionReleased {
		return &Outcome{Success: false, Info: InfoNotReleased}, nil
	}

	tag := ev.Release.TagName
	if !strings.HasPrefix(tag, opts.VersionPrefix) {
		return &Outcome{Success: false, Info: InfoPrefixMismatch}, nil
	}
	version := strings.TrimPrefix(tag, opts.VersionPrefix)

	entry, err := s.checkAndUpdateModule(ctx, module, ev.Repository, opts, tag)
	if err != nil {
		return nil, err
	}

	v, err := ParseReleaseVersion(version)
	if err != nil {
		return nil, reject(http.StatusBadRequest, ReasonInvalidVersion)
	}
	exists, err := s.modules.VersionExists(ctx, module, v.Major, v.Minor, v.Patch)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, reject(http.StatusBadRequest, ReasonVersionExists)
	}

	assets := ev.Release.Assets
	if entry.Kind != models.ModuleKindStd {
		if assets, err = FilterReleaseAssets(assets); err != nil {
			return nil, err
		}
	}

	build := &models.Build{
		ID:      s.newID(),
		Module:  module,
		Version: version,
		Status:  models.BuildStatusQueued,
		Assets:  toReleaseAssets(assets),
	}
	if err := s.builds.CreateBuild(ctx, build); err != nil {
		return nil, err
	}
	if err := s.producer.Enqueue(ctx, build); err != nil {
		// The build row exists; the stale build sweeper will enqueue it.
		slog.Warn("failed to enqueue build, leaving it for the sweeper",
			"build_id", build.ID, "module", module, "error", err)
	}

	owner, repo := ev.Repository.OwnerRepo()
	return &Outcome{
		Success: true,
		Data: map[string]any{
			"module":     module,
			"version":    version,
			"repository": owner + "/" + repo,
			"build_id":   build.ID,
		},
	}, nil
}

// checkAndUpdateModule enforces naming and ownership rules and upserts the
// module, returning the stored record. The stored kind decides which rules
// apply: a provider stays bound to its repository whatever the delivery's
// type says, and std checks are skipped only for a std entry or a new std
// registration.
func (s *Intake) checkAndUpdateModule(ctx context.Context, name string, ghRepo github.Repository, opts Options, triggerTag string) (*models.Module, error) {
	switch opts.Type {
	case "", models.ModuleKindProvider, models.ModuleKindStd:
	default:
		return nil, reject(http.StatusBadRequest, ReasonInvalidType)
	}

	entry, err := s.modules.GetModule(ctx, name)
	if err != nil {
		return nil, err
	}

	switch {
	case entry != nil && entry.Kind == models.ModuleKindStd:
		if opts.Type != models.ModuleKindStd {
			return nil, reject(http.StatusConflict, ReasonOwnership)
		}
	case entry != nil:
		if entry.RepoID != ghRepo.ID {
			return nil, reject(http.StatusConflict, ReasonOwnership)
		}
	case opts.Type != models.ModuleKindStd:
		if err := validation.ValidateModuleName(name); err != nil {
			return nil, reject(http.StatusBadRequest, ReasonInvalidName)
		}
		forbidden, err := s.words.IsForbidden(ctx, name)
		if err != nil {
			return nil, err
		}
		if forbidden {
			return nil, reject(http.StatusBadRequest, ReasonForbiddenWord)
		}
	}

	owner, repo := ghRepo.OwnerRepo()
	module := entry
	if module == nil {
		kind := opts.Type
		if kind == "" {
			kind = models.ModuleKindProvider
		}
		module = &models.Module{Name: name, Kind: kind}
	}
	module.RepoID = ghRepo.ID
	module.Owner = owner
	module.Repo = repo
	module.Description = ghRepo.DescriptionText()
	module.StarCount = ghRepo.StargazersCount

	if err := s.modules.UpsertModule(ctx, module); err != nil {
		return nil, err
	}

	if entry == nil {
		slog.Info("module registered", "module", name, "kind", module.Kind, "repository", owner+"/"+repo)
		if s.hook != nil {
			s.hook.ModuleRegistered(module, opts, triggerTag)
		}
	}
	return module, nil
}

// ParseReleaseVersion strips a leading "v" and parses the rest as semver.
// Parts that do not fit the catalog's signed 64-bit columns are rejected.
func ParseReleaseVersion(version string) (validation.Version, error) {
	v := validation.Parse(validation.TrimTagPrefix(version))
	if !v.Matches {
		return v, fmt.Errorf("%s: %q", ReasonInvalidVersion, version)
	}
	if v.Major > math.MaxInt64 || v.Minor > math.MaxInt64 || v.Patch > math.MaxInt64 {
		return v, fmt.Errorf("%s: %q out of range", ReasonInvalidVersion, version)
	}
	return v, nil
}

// FilterReleaseAssets keeps the assets a build needs and requires at least
// one native library among them.
func FilterReleaseAssets(assets []github.Asset) ([]github.Asset, error) {
	kept := make([]github.Asset, 0, len(assets))
	hasNative := false
	for _, a := range assets {
		if !validation.IsBuildAsset(a.Name) {
			continue
		}
		kept = append(kept, a)
		if validation.IsNativeLibrary(a.Name) {
			hasNative = true
		}
	}
	if !hasNative {
		return nil, reject(http.StatusBadRequest, ReasonNoNativeLibrary)
	}
	return kept, nil
}

func toReleaseAssets(assets []github.Asset) models.ReleaseAssets {
	out := make(models.ReleaseAssets, 0, len(assets))
	for _, a := range assets {
		out = append(out, models.ReleaseAsset{
			Name:               a.Name,
			BrowserDownloadURL: a.BrowserDownloadURL,
			ContentType:        a.ContentType,
			Size:               a.Size,
		})
	}
	return out
}
