// Package gcs stores module files in a Google Cloud Storage bucket.
// Credentials come from Application Default Credentials or an explicit
// service account key.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/nutshimit/mashin-registry/internal/config"
	appstorage "github.com/nutshimit/mashin-registry/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.Config) (appstorage.Storage, error) {
		return New(&cfg.Storage.GCS)
	})
}

// GCSStorage implements storage.Storage on a GCS bucket.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// New creates a new Google Cloud Storage backend.
//
// Authentication methods:
//   - "default" or "workload_identity": Application Default Credentials
//   - "service_account": a key file or inline key JSON
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "workload_identity", "default":
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', or 'workload_identity')", authMethod)
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put writes body to key with its SHA-256 in object metadata.
func (s *GCSStorage) Put(ctx context.Context, key string, body []byte, contentType string) (*appstorage.Object, error) {
	sum := appstorage.Checksum(body)

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = map[string]string{appstorage.ChecksumMetadataKey: sum}

	if _, err := writer.Write(body); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	obj := &appstorage.Object{
		Key:          key,
		Size:         int64(len(body)),
		Checksum:     sum,
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}
	if attrs := writer.Attrs(); attrs != nil {
		obj.LastModified = attrs.Updated
	}
	return obj, nil
}

// Get streams the object at key.
func (s *GCSStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, appstorage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return reader, nil
}

// Stat reads object attributes. GCS keeps no SHA-256 of its own, so objects
// written by another tool are hashed by downloading them.
func (s *GCSStorage) Stat(ctx context.Context, key string) (*appstorage.Object, error) {
	attrs, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, appstorage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object attributes: %w", err)
	}

	obj := &appstorage.Object{
		Key:          key,
		Size:         attrs.Size,
		Checksum:     appstorage.MetadataValue(attrs.Metadata, appstorage.ChecksumMetadataKey),
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
	}
	if obj.ContentType == "" {
		obj.ContentType = appstorage.ContentTypeFor(key)
	}

	if obj.Checksum == "" {
		rc, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to compute checksum: %w", err)
		}
		obj.Checksum = appstorage.Checksum(data)
	}
	return obj, nil
}

// Delete removes the object at key. Missing objects are not an error.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete from GCS: %w", err)
	}
	return nil
}
