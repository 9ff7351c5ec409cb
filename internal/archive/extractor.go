// Package archive downloads the source zip GitHub publishes for a release tag
// and copies the files worth serving (TypeScript sources, markdown, READMEs
// and licenses) into object storage. It also hands back the README and any
// example programs so the build can attach them to the version record.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nutshimit/mashin-registry/internal/fetch"
	"github.com/nutshimit/mashin-registry/internal/storage"
	"github.com/nutshimit/mashin-registry/internal/telemetry"
	"github.com/nutshimit/mashin-registry/internal/validation"
)

// Kind classifies a stored archive entry.
type Kind string

const (
	KindReadme  Kind = "readme"
	KindLicense Kind = "license"
	KindExample Kind = "example"
	KindSource  Kind = "source"
)

// File is one archive entry that was copied to storage.
type File struct {
	Kind Kind
	// Path is the entry name inside the zip, e.g. "neon-0.1.0/mod.ts".
	Path string
	// Key is where the entry was stored: "{owner}/{Path}".
	Key string
	// Resource is set for examples: "neon-0.1.0/examples/database.ts" -> "database".
	Resource string
	Content  []byte
}

// Result is what Extract found in the archive.
type Result struct {
	// Readme is nil when the archive root has no README or README.md.
	Readme   []byte
	Examples []File
	Files    []File
}

// Extractor copies release archives into storage.
type Extractor struct {
	fetcher fetch.Getter
	store   storage.Storage
	baseURL string
}

// NewExtractor creates an extractor that downloads archives from baseURL
// (normally https://github.com).
func NewExtractor(fetcher fetch.Getter, store storage.Storage, baseURL string) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// ArchiveURL is the zip GitHub serves for a tag.
func ArchiveURL(baseURL, owner, repo, tag string) string {
	return fmt.Sprintf("%s/%s/%s/archive/refs/tags/%s.zip", strings.TrimRight(baseURL, "/"), owner, repo, tag)
}

// RootDir is the single top-level directory GitHub puts in a tag archive.
func RootDir(repo, tag string) string {
	return repo + "-" + validation.TrimTagPrefix(tag)
}

// Keep reports whether an entry is copied to storage.
func Keep(name string) bool {
	return strings.HasSuffix(name, ".ts") ||
		strings.HasSuffix(name, ".md") ||
		strings.HasSuffix(name, "LICENSE") ||
		strings.HasSuffix(name, "README")
}

// Extract downloads the archive for tag and stores every kept entry at
// {owner}/{entry name}, overwriting what is there.
func (e *Extractor) Extract(ctx context.Context, owner, repo, tag string) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "archive.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("repository", owner+"/"+repo),
		attribute.String("tag", tag),
	)

	url := ArchiveURL(e.baseURL, owner, repo, tag)
	data, err := fetch.ReadAll(ctx, e.fetcher, url, validation.MaxArchiveSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return nil, fmt.Errorf("failed to download release archive: %w", err)
	}

	// Insecure names are filtered per entry below.
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid zip")
		return nil, fmt.Errorf("failed to open release archive: %w", err)
	}

	root := RootDir(repo, tag)
	examplesDir := root + "/examples/"
	result := &Result{Examples: []File{}, Files: []File{}}

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || !Keep(zf.Name) {
			continue
		}
		if err := validation.ValidateEntryPath(zf.Name); err != nil {
			slog.Warn("skipping unsafe archive entry", "repository", owner+"/"+repo, "tag", tag, "entry", zf.Name, "error", err)
			continue
		}

		content, err := readEntry(zf)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid entry")
			return nil, err
		}

		key := owner + "/" + zf.Name
		if _, err := e.store.Put(ctx, key, content, storage.ContentTypeFor(zf.Name)); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store failed")
			return nil, fmt.Errorf("failed to store %s: %w", key, err)
		}
		telemetry.ArchiveFilesStoredTotal.Inc()

		file := File{Kind: KindSource, Path: zf.Name, Key: key, Content: content}
		switch {
		case zf.Name == root+"/README" || zf.Name == root+"/README.md":
			file.Kind = KindReadme
			result.Readme = content
		case zf.Name == root+"/LICENSE":
			file.Kind = KindLicense
		case strings.HasPrefix(zf.Name, examplesDir) && strings.HasSuffix(zf.Name, ".ts"):
			file.Kind = KindExample
			file.Resource = strings.TrimSuffix(strings.TrimPrefix(zf.Name, examplesDir), ".ts")
			result.Examples = append(result.Examples, file)
		}
		result.Files = append(result.Files, file)
	}

	span.SetAttributes(
		attribute.Int("files.stored", len(result.Files)),
		attribute.Int("files.examples", len(result.Examples)),
	)
	return result, nil
}

// readEntry decompresses one entry, refusing anything past MaxEntrySize
// whatever the header claims.
func readEntry(zf *zip.File) ([]byte, error) {
	if zf.UncompressedSize64 > validation.MaxEntrySize {
		return nil, fmt.Errorf("archive entry %s is %d bytes, limit is %d", zf.Name, zf.UncompressedSize64, validation.MaxEntrySize)
	}
	rc, err := zf.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open archive entry %s: %w", zf.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, validation.MaxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive entry %s: %w", zf.Name, err)
	}
	if int64(len(content)) > validation.MaxEntrySize {
		return nil, fmt.Errorf("archive entry %s exceeds %d bytes", zf.Name, validation.MaxEntrySize)
	}
	return content, nil
}
