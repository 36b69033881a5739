package jobs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/logging"
	"github.com/redactifai/redactifai-worker/internal/pipeline"
	"github.com/redactifai/redactifai-worker/internal/storage"
)

// Runner executes the six-step algorithm of the durable job state machine
// for one delivered job ID: load-or-terminal, mark processing, download,
// run the pipeline, upload-then-delete on success, retry-or-fail on error.
type Runner struct {
	repo       Repository
	store      storage.Store
	pipeline   *pipeline.Pipeline
	logger     *zap.Logger
	maxRetries int
}

// NewRunner constructs a Runner.
func NewRunner(repo Repository, store storage.Store, p *pipeline.Pipeline, logger *zap.Logger, maxRetries int) *Runner {
	return &Runner{
		repo:       repo,
		store:      store,
		pipeline:   p,
		logger:     logger.Named("jobs.runner"),
		maxRetries: maxRetries,
	}
}

// Outcome reports how Run resolved the job, for the queue layer to decide
// whether to ack (ok or terminal failure) or let the delivery be retried.
type Outcome struct {
	// Retry is true when the caller should return an error to the queue
	// so the message is redelivered under its own backoff policy. It is
	// false both for success and for a retry-budget-exhausted terminal
	// failure — in both cases the job row already reflects a final state
	// and redelivery would be wasted work.
	Retry bool
}

// Run executes one delivery attempt for jobID against attempt (the
// queue's own redelivery counter, 1-indexed).
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID, attempt int) (Outcome, error) {
	ctx = logging.WithJobID(ctx, jobID.String())

	// Step 1: load or terminal error.
	job, err := r.repo.GetJob(ctx, jobID)
	if err != nil {
		r.logger.Error("job not found, cannot process", zap.String("job_id", jobID.String()), zap.Error(err))
		return Outcome{Retry: false}, fmt.Errorf("load job %s: %w", jobID, err)
	}

	// Step 2: transition to PROCESSING.
	if err := r.repo.MarkProcessing(ctx, jobID, attempt-1); err != nil {
		return Outcome{Retry: true}, fmt.Errorf("mark job %s processing: %w", jobID, err)
	}

	start := time.Now()

	// Step 3: download from the PHI bucket.
	rc, err := r.store.Download(ctx, storage.BucketPHI, job.InputKey)
	if err != nil {
		return r.handleFailure(ctx, job, attempt, fmt.Errorf("download input %s: %w", job.InputKey, err))
	}
	data, readErr := io.ReadAll(rc)
	_ = rc.Close()
	if readErr != nil {
		return r.handleFailure(ctx, job, attempt, fmt.Errorf("read input %s: %w", job.InputKey, readErr))
	}

	// Step 4: run the pipeline.
	result, err := r.pipeline.Deidentify(ctx, data, job.MaskingLevel, nil)
	if err != nil {
		return r.handleFailure(ctx, job, attempt, err)
	}

	// Step 5: upload, then delete the PHI input, then persist completion.
	outputKey := fmt.Sprintf("masked/%s%s", jobID, extOf(job.InputKey))
	if err := r.store.Upload(ctx, storage.BucketClean, outputKey, contentTypeOf(outputKey), bytes.NewReader(result.OutputBytes)); err != nil {
		return r.handleFailure(ctx, job, attempt, fmt.Errorf("upload output %s: %w", outputKey, err))
	}
	if err := r.store.Delete(ctx, storage.BucketPHI, job.InputKey); err != nil {
		r.logger.Warn("failed to delete PHI input after successful upload",
			zap.String("job_id", jobID.String()), zap.String("input_key", job.InputKey), zap.Error(err))
	}

	entities := EntitiesFromRegions(jobID, result.Regions)
	if err := r.repo.Complete(ctx, jobID, outputKey, result.PagesProcessed, time.Since(start), entities); err != nil {
		return Outcome{Retry: true}, fmt.Errorf("persist completion for job %s: %w", jobID, err)
	}

	r.logger.Info("job complete",
		zap.String("job_id", jobID.String()),
		zap.Int("pages_processed", result.PagesProcessed),
		zap.Int("phi_entities_masked", result.PHIEntitiesMasked),
		zap.Duration("processing_time", time.Since(start)))
	return Outcome{Retry: false}, nil
}

// handleFailure implements step 6: either let the caller signal the queue
// to redeliver (the redelivered attempt's MarkProcessing records the
// higher retry_count), or write FAILED if the retry
// budget or the error's own terminal classification forecloses that.
func (r *Runner) handleFailure(ctx context.Context, job *Job, attempt int, cause error) (Outcome, error) {
	jobID := job.ID
	retryable := apperrors.IsRetryable(cause) && attempt < r.maxRetries

	if retryable {
		r.logger.Warn("job attempt failed, will retry",
			zap.String("job_id", jobID.String()), zap.Int("attempt", attempt), zap.Error(cause))
		return Outcome{Retry: true}, cause
	}

	r.logger.Error("job failed terminally",
		zap.String("job_id", jobID.String()), zap.Int("attempt", attempt), zap.Error(cause))
	if failErr := r.repo.Fail(ctx, jobID, cause.Error()); failErr != nil {
		return Outcome{Retry: false}, fmt.Errorf("mark job %s failed (original error %v): %w", jobID, cause, failErr)
	}
	return Outcome{Retry: false}, cause
}

func extOf(key string) string {
	ext := filepath.Ext(key)
	if ext == "" {
		return ".tiff"
	}
	return ext
}

func contentTypeOf(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	default:
		return "image/tiff"
	}
}

