package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/github"
	"github.com/nutshimit/mashin-registry/internal/queue"
	"github.com/nutshimit/mashin-registry/internal/safego"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

const defaultBackfillTimeout = 5 * time.Minute

// Backfill queues builds for the releases a repository published before its
// webhook was installed. It runs once, when a module is first registered.
type Backfill struct {
	releases github.ReleaseLister
	modules  ModuleStore
	builds   BuildStore
	producer queue.Producer
	timeout  time.Duration
	newID    func() string
}

// NewBackfill creates a backfill hook. A zero timeout uses five minutes.
func NewBackfill(releases github.ReleaseLister, modules ModuleStore, builds BuildStore, producer queue.Producer, timeout time.Duration) *Backfill {
	if timeout <= 0 {
		timeout = defaultBackfillTimeout
	}
	return &Backfill{
		releases: releases,
		modules:  modules,
		builds:   builds,
		producer: producer,
		timeout:  timeout,
		newID:    uuid.NewString,
	}
}

// ModuleRegistered starts the backfill in the background. It never blocks the
// webhook response.
func (b *Backfill) ModuleRegistered(module *models.Module, opts Options, skipTag string) {
	m := *module
	safego.Go("backfill "+m.Name, func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()

		queued, err := b.Run(ctx, &m, opts, skipTag)
		if err != nil {
			slog.Error("release backfill failed", "module", m.Name, "queued", queued, "error", err)
			return
		}
		slog.Info("release backfill finished", "module", m.Name, "queued", queued)
	})
}

// Run lists the repository's releases and queues a build for every published
// release matching the version prefix that is not already in the catalog,
// oldest first. skipTag is left to the delivery that triggered registration.
// It returns the number of builds queued.
func (b *Backfill) Run(ctx context.Context, module *models.Module, opts Options, skipTag string) (int, error) {
	releases, err := b.releases.ListReleases(ctx, module.Owner, module.Repo)
	if err != nil {
		return 0, err
	}

	byTag := make(map[string]github.Release, len(releases))
	tags := make([]string, 0, len(releases))
	for _, r := range releases {
		if r.Draft || r.TagName == "" || r.TagName == skipTag {
			continue
		}
		if _, dup := byTag[r.TagName]; dup {
			continue
		}
		byTag[r.TagName] = r
		tags = append(tags, r.TagName)
	}

	queued := 0
	for _, tag := range validation.SortTags(tags, opts.VersionPrefix) {
		if err := ctx.Err(); err != nil {
			return queued, err
		}

		release := byTag[tag]
		version := strings.TrimPrefix(tag, opts.VersionPrefix)
		v, err := ParseReleaseVersion(version)
		if err != nil {
			continue
		}
		exists, err := b.modules.VersionExists(ctx, module.Name, v.Major, v.Minor, v.Patch)
		if err != nil {
			return queued, err
		}
		if exists {
			continue
		}

		assets := release.Assets
		if module.Kind != models.ModuleKindStd {
			if assets, err = FilterReleaseAssets(assets); err != nil {
				slog.Debug("skipping release without native libraries", "module", module.Name, "tag", tag)
				continue
			}
		}

		build := &models.Build{
			ID:      b.newID(),
			Module:  module.Name,
			Version: version,
			Status:  models.BuildStatusQueued,
			Assets:  toReleaseAssets(assets),
		}
		if err := b.builds.CreateBuild(ctx, build); err != nil {
			return queued, err
		}
		if err := b.producer.Enqueue(ctx, build); err != nil {
			slog.Warn("failed to enqueue backfill build, leaving it for the sweeper",
				"build_id", build.ID, "module", module.Name, "error", err)
		}
		queued++
	}
	return queued, nil
}
