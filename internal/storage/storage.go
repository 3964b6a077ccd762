// Package storage keeps profile photos in MinIO or Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/adminkit/apiserver/config"
)

// ObjectStorage defines the object operations shared by every backend.
// Delete succeeds for keys that do not exist.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Open connects to the backend named by cfg and makes sure its bucket
// exists. It returns nil and no error when no backend is configured.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStorage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", backend.Bucket(), err)
	}
	return backend, nil
}
