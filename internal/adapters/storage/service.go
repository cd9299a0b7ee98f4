// Package storage provides a domain-agnostic interface for S3-compatible object storage.
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the bucket operations the application needs.
type ObjectStorage interface {
	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// PutObject stores data under key, replacing any previous object.
	PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error

	// GetObject reads the whole object. Missing keys return ErrObjectNotFound.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	// RemoveObject deletes key. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, bucket, key string) error

	// ListObjects returns the keys under prefix, recursively.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Config defines the configuration interface for storage.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	IsMinIOEnabled() bool
}
