package jobs

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/docproc"
	"github.com/redactifai/redactifai-worker/internal/geometry"
	"github.com/redactifai/redactifai-worker/internal/masker"
	"github.com/redactifai/redactifai-worker/internal/matcher"
	"github.com/redactifai/redactifai-worker/internal/ocr"
	"github.com/redactifai/redactifai-worker/internal/phidetect"
	"github.com/redactifai/redactifai-worker/internal/pipeline"
	"github.com/redactifai/redactifai-worker/internal/storage"
)

type fakeRepo struct {
	job             *Job
	processingCalls int
	completed       *Entity
	failedMsg       string
}

func (f *fakeRepo) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	if f.job == nil || f.job.ID != id {
		return nil, apperrors.NewStorageError("not found", nil, true, false)
	}
	cp := *f.job
	return &cp, nil
}

func (f *fakeRepo) MarkProcessing(_ context.Context, _ uuid.UUID, retryCount int) error {
	f.processingCalls++
	f.job.Status = StatusProcessing
	f.job.RetryCount = retryCount
	return nil
}

func (f *fakeRepo) Complete(_ context.Context, _ uuid.UUID, outputKey string, pagesProcessed int, _ time.Duration, entities []Entity) error {
	f.job.Status = StatusComplete
	f.job.OutputKey = outputKey
	f.job.PagesProcessed = pagesProcessed
	if len(entities) > 0 {
		f.completed = &entities[0]
	}
	return nil
}

func (f *fakeRepo) Fail(_ context.Context, _ uuid.UUID, errMsg string) error {
	f.job.Status = StatusFailed
	f.failedMsg = errMsg
	return nil
}

type fakeStore struct {
	objects map[string][]byte
	deleted []string
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func key(bucket storage.Bucket, k string) string { return string(bucket) + "/" + k }

func (f *fakeStore) Upload(_ context.Context, bucket storage.Bucket, k, _ string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key(bucket, k)] = b
	return nil
}

func (f *fakeStore) Download(_ context.Context, bucket storage.Bucket, k string) (io.ReadCloser, error) {
	b, ok := f.objects[key(bucket, k)]
	if !ok {
		return nil, apperrors.NewStorageError("missing", nil, true, false)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeStore) Exists(_ context.Context, bucket storage.Bucket, k string) (bool, error) {
	_, ok := f.objects[key(bucket, k)]
	return ok, nil
}

func (f *fakeStore) Delete(_ context.Context, bucket storage.Bucket, k string) error {
	delete(f.objects, key(bucket, k))
	f.deleted = append(f.deleted, k)
	return nil
}

func grayPage(w, h int) image.Image {
	return image.NewGray(image.Rect(0, 0, w, h))
}

func newTestPipeline(mockOCR *ocr.MockAdapter, mockProvider *phidetect.MockProvider) *pipeline.Pipeline {
	mk, err := masker.New(zap.NewNop())
	if err != nil {
		panic(err)
	}
	return pipeline.New(
		zap.NewNop(),
		docproc.New(),
		mockOCR,
		phidetect.New(mockProvider, zap.NewNop()),
		matcher.New(zap.NewNop()),
		mk,
	)
}

func TestRunner_RunSuccessUploadsAndDeletesInput(t *testing.T) {
	jobID := uuid.New()
	store := newFakeStore()

	doc, err := docproc.New().Save([]image.Image{grayPage(200, 100)}, geometry.DocumentMetadata{DPI: [2]float64{300, 300}})
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), storage.BucketPHI, "input/"+jobID.String()+".tiff", "image/tiff", bytes.NewReader(doc)))

	repo := &fakeRepo{job: &Job{
		ID:           jobID,
		Status:       StatusPending,
		MaskingLevel: geometry.SafeHarbor,
		InputKey:     "input/" + jobID.String() + ".tiff",
	}}

	box, err := geometry.NewBoundingBox(1, 10, 10, 40, 20)
	require.NoError(t, err)
	mockOCR := &ocr.MockAdapter{
		Text:  "Patient Jane Doe",
		Words: []geometry.OCRWord{
			{Text: "Patient", BoundingBox: geometry.BoundingBox{Page: 1, X: 10, Y: 40, Width: 60, Height: 20}, Confidence: 0.9},
			{Text: "Jane", BoundingBox: box, Confidence: 0.9},
		},
	}
	mockProvider := &phidetect.MockProvider{
		Entities: []geometry.PHIEntity{{Text: "Jane", Category: "PERSON", Offset: 8, Length: 4, Confidence: 0.95}},
	}

	r := NewRunner(repo, store, newTestPipeline(mockOCR, mockProvider), zap.NewNop(), 3)

	outcome, err := r.Run(context.Background(), jobID, 1)
	require.NoError(t, err)
	assert.False(t, outcome.Retry)
	assert.Equal(t, StatusComplete, repo.job.Status)
	assert.Equal(t, "masked/"+jobID.String()+".tiff", repo.job.OutputKey)
	assert.Contains(t, store.deleted, "input/"+jobID.String()+".tiff")
	assert.NotNil(t, repo.completed)
	assert.Equal(t, "PERSON", repo.completed.Category)
}

func TestRunner_RunTerminalFormatErrorDoesNotRetry(t *testing.T) {
	jobID := uuid.New()
	store := newFakeStore()
	require.NoError(t, store.Upload(context.Background(), storage.BucketPHI, "input/bad.tiff", "image/tiff", bytes.NewReader([]byte("not a tiff"))))

	repo := &fakeRepo{job: &Job{ID: jobID, Status: StatusPending, MaskingLevel: geometry.SafeHarbor, InputKey: "input/bad.tiff"}}

	r := NewRunner(repo, store, newTestPipeline(&ocr.MockAdapter{}, &phidetect.MockProvider{}), zap.NewNop(), 3)

	outcome, err := r.Run(context.Background(), jobID, 1)
	require.Error(t, err)
	assert.False(t, outcome.Retry)
	assert.Equal(t, StatusFailed, repo.job.Status)
	assert.NotEmpty(t, repo.failedMsg)
}

func TestRunner_RunMissingInputFailsTerminally(t *testing.T) {
	jobID := uuid.New()
	store := newFakeStore() // input key never uploaded -> Download returns a NotFound StorageError, which IsRetryable treats as terminal.

	repo := &fakeRepo{job: &Job{ID: jobID, Status: StatusPending, MaskingLevel: geometry.SafeHarbor, InputKey: "input/missing.tiff"}}
	r := NewRunner(repo, store, newTestPipeline(&ocr.MockAdapter{}, &phidetect.MockProvider{}), zap.NewNop(), 3)

	outcome, err := r.Run(context.Background(), jobID, 1)
	require.Error(t, err)
	assert.False(t, outcome.Retry)
	assert.Equal(t, StatusFailed, repo.job.Status)
}

func TestRunner_RunJobNotFoundReturnsTerminalError(t *testing.T) {
	repo := &fakeRepo{}
	store := newFakeStore()
	r := NewRunner(repo, store, newTestPipeline(&ocr.MockAdapter{}, &phidetect.MockProvider{}), zap.NewNop(), 3)

	_, err := r.Run(context.Background(), uuid.New(), 1)
	assert.Error(t, err)
	assert.True(t, errors.As(err, new(*apperrors.StorageError)))
}
