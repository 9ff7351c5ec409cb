package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nutshimit/mashin-registry/internal/archive"
	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/db/repositories"
	"github.com/nutshimit/mashin-registry/internal/docgen"
	"github.com/nutshimit/mashin-registry/internal/fetch"
	"github.com/nutshimit/mashin-registry/internal/storage"
	"github.com/nutshimit/mashin-registry/internal/telemetry"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

// Build failure messages recorded on the build.
var (
	ErrModuleNotRegistered = errors.New("module not registered")
	ErrInvalidModuleType   = errors.New(ReasonInvalidType)
	ErrInvalidVersion      = errors.New(ReasonInvalidVersion)
	ErrVersionExists       = errors.New(ReasonVersionExists)
)

// Asset names with a fixed meaning in a provider release.
const (
	DocGraphAsset   = "mod.json"
	EntrypointAsset = "mod.ts"
)

// maxDocGraphBytes bounds the mod.json download.
const maxDocGraphBytes = 32 << 20

// Extractor unpacks a tagged release archive.
type Extractor interface {
	Extract(ctx context.Context, owner, repo, tag string) (*archive.Result, error)
}

// BuildProcessor turns a queued build into a published module version.
type BuildProcessor struct {
	modules   ModuleStore
	builds    BuildStore
	extractor Extractor
	assets    fetch.Getter
	store     storage.Storage
	tracer    trace.Tracer
}

// NewBuildProcessor creates a build processor.
func NewBuildProcessor(modules ModuleStore, builds BuildStore, extractor Extractor, assets fetch.Getter, store storage.Storage) *BuildProcessor {
	return &BuildProcessor{
		modules:   modules,
		builds:    builds,
		extractor: extractor,
		assets:    assets,
		store:     store,
		tracer:    telemetry.Tracer(),
	}
}

// Process runs one build to a terminal status. Pipeline failures are recorded
// on the build and are not returned; an error is returned only when the
// terminal status itself could not be written, so the message is redelivered.
func (p *BuildProcessor) Process(ctx context.Context, build models.Build) error {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "build.Process", trace.WithAttributes(
		attribute.String("build.id", build.ID),
		attribute.String("build.module", build.Module),
		attribute.String("build.version", build.Version),
	))
	defer span.End()

	kind, err := p.run(ctx, build)
	span.SetAttributes(attribute.String("module.kind", kind))
	telemetry.BuildDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.BuildsTotal.WithLabelValues(kind, models.BuildStatusError).Inc()
		slog.Warn("build failed", "build_id", build.ID, "module", build.Module, "version", build.Version, "error", err)

		if _, serr := p.builds.SetBuildError(ctx, build.ID, err.Error()); serr != nil {
			return fmt.Errorf("failed to record build error: %w", serr)
		}
		return nil
	}

	telemetry.BuildsTotal.WithLabelValues(kind, models.BuildStatusSuccess).Inc()
	changed, err := p.builds.SetBuildSuccess(ctx, build.ID)
	if err != nil {
		return fmt.Errorf("failed to record build success: %w", err)
	}
	if !changed {
		slog.Warn("build already terminal, success not recorded", "build_id", build.ID)
	}
	slog.Info("build succeeded", "build_id", build.ID, "module", build.Module, "version", build.Version,
		"duration", time.Since(start))
	return nil
}

// run dispatches on the module kind and returns the kind for metrics.
func (p *BuildProcessor) run(ctx context.Context, build models.Build) (string, error) {
	module, err := p.modules.GetModule(ctx, build.Module)
	if err != nil {
		return "unknown", err
	}
	if module == nil {
		return "unknown", ErrModuleNotRegistered
	}

	switch module.Kind {
	case models.ModuleKindStd:
		return module.Kind, p.processStd(ctx, module, build)
	case models.ModuleKindProvider:
		return module.Kind, p.processProvider(ctx, module, build)
	default:
		return "unknown", ErrInvalidModuleType
	}
}

// precheck parses the version and rejects versions already published.
func (p *BuildProcessor) precheck(ctx context.Context, module string, version string) (validation.Version, error) {
	v, err := ParseReleaseVersion(version)
	if err != nil {
		return v, ErrInvalidVersion
	}
	exists, err := p.modules.VersionExists(ctx, module, v.Major, v.Minor, v.Patch)
	if err != nil {
		return v, err
	}
	if exists {
		return v, ErrVersionExists
	}
	return v, nil
}

func (p *BuildProcessor) extract(ctx context.Context, module *models.Module, tag string) (*archive.Result, error) {
	ctx, span := p.tracer.Start(ctx, "build.extract")
	defer span.End()

	result, err := p.extractor.Extract(ctx, module.Owner, module.Repo, tag)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("archive.files", len(result.Files)))
	return result, nil
}

func (p *BuildProcessor) processStd(ctx context.Context, module *models.Module, build models.Build) error {
	v, err := p.precheck(ctx, module.Name, build.Version)
	if err != nil {
		return err
	}
	result, err := p.extract(ctx, module, build.Version)
	if err != nil {
		return err
	}

	all := validation.AllPlatforms
	return p.publish(ctx, &models.ModuleVersion{
		Module:     module.Name,
		Entrypoint: "",
		Major:      v.Major,
		Minor:      v.Minor,
		Patch:      v.Patch,
		LinuxX86:   all.LinuxX86,
		MacOSX86:   all.MacOSX86,
		WindowsX86: all.WindowsX86,
		Doc:        json.RawMessage("[]"),
		Readme:     readmeText(result),
	})
}

func (p *BuildProcessor) processProvider(ctx context.Context, module *models.Module, build models.Build) error {
	v, err := p.precheck(ctx, module.Name, build.Version)
	if err != nil {
		return err
	}
	result, err := p.extract(ctx, module, build.Version)
	if err != nil {
		return err
	}

	platforms := validation.DetectPlatforms(build.Assets.Names())

	doc, err := p.documentation(ctx, module, build.Assets, result)
	if err != nil {
		return err
	}

	if asset, ok := build.Assets.Find(EntrypointAsset); ok {
		if err := p.storeEntrypoint(ctx, module, build.Version, asset); err != nil {
			return err
		}
	}

	return p.publish(ctx, &models.ModuleVersion{
		Module:     module.Name,
		Entrypoint: EntrypointAsset,
		Major:      v.Major,
		Minor:      v.Minor,
		Patch:      v.Patch,
		LinuxX86:   platforms.LinuxX86,
		MacOSX86:   platforms.MacOSX86,
		WindowsX86: platforms.WindowsX86,
		Doc:        doc,
		Readme:     readmeText(result),
	})
}

// documentation fetches the mod.json graph, when the release has one, and
// synthesizes the documentation list. A missing or malformed graph is logged
// and treated as empty; any other download failure fails the build.
func (p *BuildProcessor) documentation(ctx context.Context, module *models.Module, assets models.ReleaseAssets, result *archive.Result) (json.RawMessage, error) {
	ctx, span := p.tracer.Start(ctx, "build.documentation")
	defer span.End()

	var nodes []docgen.Node
	if asset, ok := assets.Find(DocGraphAsset); ok {
		data, err := fetch.ReadAll(ctx, p.assets, asset.BrowserDownloadURL, maxDocGraphBytes)
		switch {
		case errors.Is(err, fetch.ErrNotFound):
			slog.Warn("documentation graph not found", "module", module.Name, "url", asset.BrowserDownloadURL)
		case err != nil:
			span.RecordError(err)
			return nil, fmt.Errorf("failed to download %s: %w", DocGraphAsset, err)
		default:
			nodes, err = docgen.ParseGraph(data)
			if err != nil {
				slog.Warn("ignoring malformed documentation graph", "module", module.Name, "error", err)
				nodes = nil
			}
		}
	}

	examples := make([]docgen.Example, 0, len(result.Examples))
	for _, f := range result.Examples {
		examples = append(examples, docgen.Example{Resource: f.Resource, Content: f.Content})
	}

	items := docgen.Synthesize(module.Name, nodes, examples)
	span.SetAttributes(attribute.Int("doc.items", len(items)))

	doc, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode documentation: %w", err)
	}
	return doc, nil
}

// storeEntrypoint overwrites the archived mod.ts with the release asset.
func (p *BuildProcessor) storeEntrypoint(ctx context.Context, module *models.Module, version string, asset models.ReleaseAsset) error {
	body, err := fetch.ReadAll(ctx, p.assets, asset.BrowserDownloadURL, validation.MaxEntrySize)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", EntrypointAsset, err)
	}
	key := EntrypointKey(module.Owner, module.Repo, version)
	if _, err := p.store.Put(ctx, key, body, storage.ContentTypeFor(key)); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// publish inserts the version and advances the latest pointer.
func (p *BuildProcessor) publish(ctx context.Context, version *models.ModuleVersion) error {
	ctx, span := p.tracer.Start(ctx, "build.publish")
	defer span.End()

	id, err := p.modules.CreateVersion(ctx, version)
	if err != nil {
		if errors.Is(err, repositories.ErrVersionExists) {
			return ErrVersionExists
		}
		return err
	}
	if _, err := p.modules.SetLatestVersion(ctx, version.Module, id); err != nil {
		return err
	}
	return nil
}

// EntrypointKey is where a release's mod.ts asset is stored. It shares the
// {repo}-{version} root of the extracted archive.
func EntrypointKey(owner, repo, version string) string {
	return fmt.Sprintf("%s/%s/%s", owner, archive.RootDir(repo, version), EntrypointAsset)
}

func readmeText(result *archive.Result) *string {
	if result == nil || result.Readme == nil {
		return nil
	}
	s := string(result.Readme)
	return &s
}
