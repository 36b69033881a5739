// Package storage implements the two-bucket storage discipline the
// pipeline depends on: raw input and intermediate artifacts live in a
// PHI bucket, de-identified output lives in a clean bucket, and the
// input is only deleted once the clean artifact has been durably
// written.
package storage

import (
	"context"
	"io"
)

// Bucket names the two storage areas a Store serves.
type Bucket string

const (
	BucketPHI   Bucket = "phi"
	BucketClean Bucket = "clean"
)

// Store is the storage backend contract. Every object is encrypted at
// rest; implementations use internal/security's streaming AES-256-GCM
// envelope so callers never see ciphertext.
type Store interface {
	Upload(ctx context.Context, bucket Bucket, key string, contentType string, data io.Reader) error
	Download(ctx context.Context, bucket Bucket, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, bucket Bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket Bucket, key string) error
}
