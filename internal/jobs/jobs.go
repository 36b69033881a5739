// Package jobs persists de-identification job rows and their PHI entity
// detail rows, and drives the durable state machine
// (pending -> processing -> complete|failed) a queue consumer executes one
// delivery at a time.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redactifai/redactifai-worker/internal/geometry"
)

// Status is a job's position in the state machine. The zero value is
// intentionally invalid; every row is created with StatusPending.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Job is one row of the durable job table described in spec.md §6.
type Job struct {
	ID                uuid.UUID
	Status            Status
	OCRProvider       string
	PHIProvider       string
	MaskingLevel      geometry.MaskingLevel
	InputKey          string
	OutputKey         string
	PagesProcessed    int
	PHIEntitiesMasked int
	ProcessingTimeMs  int64
	ErrorMessage      string
	RetryCount        int
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
}

// Entity is one row of the PHI entity detail table described in spec.md §6.
type Entity struct {
	JobID       uuid.UUID
	Text        string
	Category    string
	Subcategory string
	Page        int
	Confidence  float64
	Offset      int
	Length      int
	BBoxX       float64
	BBoxY       float64
	BBoxWidth   float64
	BBoxHeight  float64
}

// EntitiesFromRegions converts the pipeline's mask regions into persistable
// entity rows for jobID.
func EntitiesFromRegions(jobID uuid.UUID, regions []geometry.MaskRegion) []Entity {
	entities := make([]Entity, len(regions))
	for i, r := range regions {
		entities[i] = Entity{
			JobID:       jobID,
			Text:        r.Text,
			Category:    r.EntityCategory,
			Subcategory: r.Subcategory,
			Page:        r.Page,
			Confidence:  r.Confidence,
			Offset:      r.Offset,
			Length:      r.Length,
			BBoxX:       r.BoundingBox.X,
			BBoxY:       r.BoundingBox.Y,
			BBoxWidth:   r.BoundingBox.Width,
			BBoxHeight:  r.BoundingBox.Height,
		}
	}
	return entities
}

// Repository is the persistence boundary the runner drives. Implementations
// must make Completion atomic with its entity rows: both land in the same
// transaction, or neither does.
type Repository interface {
	// GetJob loads a job by ID. Returns a NotFound-flavored error (see
	// postgres.go) if the row does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// MarkProcessing transitions a job to processing and stamps
	// started_at/retry_count in one update.
	MarkProcessing(ctx context.Context, id uuid.UUID, retryCount int) error

	// Complete transitions a job to complete, persists its counters and
	// output key, and inserts entities — all in one transaction.
	Complete(ctx context.Context, id uuid.UUID, outputKey string, pagesProcessed int, processingTime time.Duration, entities []Entity) error

	// Fail transitions a job to failed and records errMsg.
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}
