package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/security"
)

// LocalStore implements Store on the local filesystem, for development
// and single-node deployments that don't need S3, grounded on the
// original pipeline's local filesystem storage backend. Every object is
// still run through the same streaming AES-256-GCM envelope S3Store
// uses, so switching STORAGE_TYPE never changes the at-rest-encryption
// guarantee.
type LocalStore struct {
	logger        *zap.Logger
	root          string
	encryptionKey []byte
}

// NewLocalStore roots all bucket subdirectories under root.
func NewLocalStore(logger *zap.Logger, root string, encryptionKey []byte) (*LocalStore, error) {
	for _, b := range []Bucket{BucketPHI, BucketClean} {
		if err := os.MkdirAll(filepath.Join(root, string(b)), 0o700); err != nil {
			return nil, err
		}
	}
	return &LocalStore{logger: logger.Named("storage.local"), root: root, encryptionKey: encryptionKey}, nil
}

func (s *LocalStore) resolve(bucket Bucket, key string) (string, error) {
	bucketDir := filepath.Join(s.root, string(bucket))
	return security.ValidateStorageKey(bucketDir, key)
}

// Upload implements Store.
func (s *LocalStore) Upload(_ context.Context, bucket Bucket, key, _ string, data io.Reader) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return apperrors.NewStorageError("resolving storage key", err, false, false)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return apperrors.NewStorageError("creating object directory", err, false, false)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return apperrors.NewStorageError("opening object for write", err, false, false)
	}
	defer func() { _ = f.Close() }()

	encrypted, err := security.EncryptReader(s.encryptionKey, data)
	if err != nil {
		return apperrors.NewStorageError("encrypting object before write", err, false, false)
	}
	if _, err := io.Copy(f, encrypted); err != nil {
		return apperrors.NewStorageError("writing object", err, false, false)
	}
	return nil
}

// Download implements Store.
func (s *LocalStore) Download(_ context.Context, bucket Bucket, key string) (io.ReadCloser, error) {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return nil, apperrors.NewStorageError("resolving storage key", err, false, false)
	}

	f, err := os.Open(path) //nolint:gosec // path validated by ValidateStorageKey above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewStorageError("object not found", err, true, false)
		}
		return nil, apperrors.NewStorageError("opening object for read", err, false, false)
	}

	decrypted, err := security.DecryptReader(s.encryptionKey, f)
	if err != nil {
		_ = f.Close()
		return nil, apperrors.NewStorageError("decrypting object", err, false, false)
	}
	return decrypted, nil
}

// Exists implements Store.
func (s *LocalStore) Exists(_ context.Context, bucket Bucket, key string) (bool, error) {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return false, apperrors.NewStorageError("resolving storage key", err, false, false)
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStorageError("stat object", err, false, false)
	}
	return true, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(_ context.Context, bucket Bucket, key string) error {
	path, err := s.resolve(bucket, key)
	if err != nil {
		return apperrors.NewStorageError("resolving storage key", err, false, false)
	}
	if err := security.SecureDeleteFile(path); err != nil {
		return apperrors.NewStorageError("secure delete failed", err, false, false)
	}
	return nil
}
