// Package storage holds object storage adapters.
package storage

import (
	"context"
	"io"
)

// ObjectStore writes and reads whole objects in a bucket.
type ObjectStore interface {
	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error
	// PutObject stores reader under key, replacing any previous object.
	PutObject(ctx context.Context, bucket, key, contentType string, reader io.Reader, size int64) error
	// GetObject opens the object at key. The caller closes the reader.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Config defines what the MinIO adapter needs from configuration.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	IsMinIOEnabled() bool
}
