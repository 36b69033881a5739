package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func key32() []byte {
	k := make([]byte, 32)
	copy(k, "this-is-a-32-byte-test-key!!!!!!")
	return k
}

func TestLocalStore_UploadDownloadRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(zap.NewNop(), root, key32())
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("patient record contents")
	require.NoError(t, store.Upload(ctx, BucketPHI, "jobs/1/input.tiff", "image/tiff", bytes.NewReader(content)))

	exists, err := store.Exists(ctx, BucketPHI, "jobs/1/input.tiff")
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Download(ctx, BucketPHI, "jobs/1/input.tiff")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocalStore_DeleteRemovesObject(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(zap.NewNop(), root, key32())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Upload(ctx, BucketClean, "out.tiff", "image/tiff", bytes.NewReader([]byte("x"))))
	require.NoError(t, store.Delete(ctx, BucketClean, "out.tiff"))

	exists, err := store.Exists(ctx, BucketClean, "out.tiff")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStore_RejectsPathTraversalKey(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(zap.NewNop(), root, key32())
	require.NoError(t, err)

	err = store.Upload(context.Background(), BucketPHI, "../../etc/passwd", "text/plain", bytes.NewReader([]byte("x")))
	assert.Error(t, err)
}

func TestLocalStore_DownloadMissingKeyReturnsNotFound(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(zap.NewNop(), root, key32())
	require.NoError(t, err)

	_, err = store.Download(context.Background(), BucketPHI, "does/not/exist.tiff")
	assert.Error(t, err)
}
