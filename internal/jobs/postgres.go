package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/apperrors"
	"github.com/redactifai/redactifai-worker/internal/geometry"
)

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository is the Repository backed by a jobs/phi_entities pair
// of tables. SQL is hand-written against pgx/v5 directly rather than
// generated, so there is no intermediate Queries struct to wire through.
type PostgresRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger.Named("jobs.postgres")}
}

// GetJob implements Repository.
func (r *PostgresRepository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	const operation = "jobs.PostgresRepository.GetJob"
	r.logger.Debug("loading job", zap.String("operation", operation), zap.String("job_id", id.String()))

	const query = `
		SELECT id, status, ocr_provider, phi_provider, masking_level, input_key,
		       output_key, pages_processed, phi_entities_masked, processing_time_ms,
		       error_message, retry_count, created_at, started_at, completed_at
		FROM jobs
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)

	var job Job
	var maskingLevel string
	var outputKey, errorMessage *string
	var startedAt, completedAt *time.Time
	err := row.Scan(&job.ID, &job.Status, &job.OCRProvider, &job.PHIProvider, &maskingLevel,
		&job.InputKey, &outputKey, &job.PagesProcessed, &job.PHIEntitiesMasked,
		&job.ProcessingTimeMs, &errorMessage, &job.RetryCount, &job.CreatedAt,
		&startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewStorageError(fmt.Sprintf("job %s not found", id), err, true, false)
		}
		r.logger.Error("database error in GetJob", zap.String("operation", operation), zap.Error(err))
		return nil, fmt.Errorf("could not get job: %w", err)
	}

	level, err := geometry.ParseMaskingLevel(maskingLevel)
	if err != nil {
		return nil, fmt.Errorf("job %s has invalid masking_level %q: %w", id, maskingLevel, err)
	}
	job.MaskingLevel = level
	if outputKey != nil {
		job.OutputKey = *outputKey
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	job.StartedAt = startedAt
	job.CompletedAt = completedAt

	return &job, nil
}

// MarkProcessing implements Repository.
func (r *PostgresRepository) MarkProcessing(ctx context.Context, id uuid.UUID, retryCount int) error {
	const operation = "jobs.PostgresRepository.MarkProcessing"
	r.logger.Debug("marking job processing", zap.String("operation", operation), zap.String("job_id", id.String()))

	const query = `
		UPDATE jobs
		SET status = $2, started_at = now(), retry_count = $3
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, StatusProcessing, retryCount)
	if err != nil {
		r.logger.Error("database error in MarkProcessing", zap.String("operation", operation), zap.Error(err))
		return fmt.Errorf("could not mark job processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewStorageError(fmt.Sprintf("job %s not found", id), nil, true, false)
	}
	return nil
}

// Complete implements Repository. The job row update and every entity
// insert run in one transaction, so a successful commit is the single
// point at which both the job's COMPLETE status and its entity rows
// become visible.
func (r *PostgresRepository) Complete(ctx context.Context, id uuid.UUID, outputKey string, pagesProcessed int, processingTime time.Duration, entities []Entity) error {
	const operation = "jobs.PostgresRepository.Complete"
	r.logger.Debug("completing job", zap.String("operation", operation), zap.String("job_id", id.String()), zap.Int("entity_count", len(entities)))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin complete transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			r.logger.Warn("rollback after failed complete", zap.String("operation", operation), zap.Error(rollbackErr))
		}
	}()

	const updateQuery = `
		UPDATE jobs
		SET status = $2, output_key = $3, pages_processed = $4, phi_entities_masked = $5,
		    processing_time_ms = $6, completed_at = now()
		WHERE id = $1`

	tag, err := tx.Exec(ctx, updateQuery, id, StatusComplete, outputKey, pagesProcessed,
		len(entities), processingTime.Milliseconds())
	if err != nil {
		r.logger.Error("database error updating job on complete", zap.String("operation", operation), zap.Error(err))
		return fmt.Errorf("could not update job on complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewStorageError(fmt.Sprintf("job %s not found", id), nil, true, false)
	}

	const insertQuery = `
		INSERT INTO phi_entities
			(job_id, text, category, subcategory, page, confidence, offset_chars, length_chars,
			 bbox_x, bbox_y, bbox_width, bbox_height)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	batch := &pgx.Batch{}
	for _, e := range entities {
		batch.Queue(insertQuery, e.JobID, e.Text, e.Category, e.Subcategory, e.Page, e.Confidence,
			e.Offset, e.Length, e.BBoxX, e.BBoxY, e.BBoxWidth, e.BBoxHeight)
	}
	results := tx.SendBatch(ctx, batch)
	for range entities {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.logger.Error("database error inserting phi entity", zap.String("operation", operation), zap.Error(err))
			return fmt.Errorf("could not insert phi entity: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("could not close entity batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit complete transaction: %w", err)
	}

	r.logger.Debug("completed job", zap.String("operation", operation), zap.String("job_id", id.String()))
	return nil
}

// Fail implements Repository.
func (r *PostgresRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	const operation = "jobs.PostgresRepository.Fail"
	r.logger.Debug("failing job", zap.String("operation", operation), zap.String("job_id", id.String()))

	const query = `
		UPDATE jobs
		SET status = $2, error_message = $3, completed_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, StatusFailed, errMsg)
	if err != nil {
		r.logger.Error("database error in Fail", zap.String("operation", operation), zap.Error(err))
		return fmt.Errorf("could not mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewStorageError(fmt.Sprintf("job %s not found", id), nil, true, false)
	}
	return nil
}
