// Package storage defines the object store that holds published module files
// (sources, READMEs, licenses and native libraries) and the common types
// shared by every backend.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// cmd/server blank-imports every backend so the registry is populated before
// configuration is read.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/nutshimit/mashin-registry/pkg/checksum"
)

// ErrNotFound is returned by Get and Stat when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// Storage is implemented by every object store backend.
//
// Keys are slash separated and never start with "/". Put overwrites any
// existing object at the same key.
type Storage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (*Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Object describes a stored file.
type Object struct {
	Key          string
	Size         int64
	Checksum     string // hex SHA-256 of the content
	ContentType  string
	LastModified time.Time
}

// ChecksumMetadataKey is the user-metadata key backends store the SHA-256
// under so Stat does not have to re-read the object.
const ChecksumMetadataKey = "sha256"

var contentTypes = map[string]string{
	".ts":    "application/typescript; charset=utf-8",
	".js":    "application/javascript; charset=utf-8",
	".json":  "application/json; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".so":    "application/octet-stream",
	".dylib": "application/octet-stream",
	".dll":   "application/octet-stream",
}

// ContentTypeFor guesses a content type from the key's extension. Files
// without a known extension (LICENSE, README) are served as plain text.
func ContentTypeFor(key string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(key))]; ok {
		return ct
	}
	if path.Ext(key) == "" {
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// Checksum returns the hex SHA-256 of body.
func Checksum(body []byte) string {
	// Reading from a bytes.Reader cannot fail.
	sum, _ := checksum.CalculateSHA256(bytes.NewReader(body))
	return sum
}

// MetadataValue looks up a user-metadata entry ignoring key case. Some
// backends canonicalise header names on the way back.
func MetadataValue(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
