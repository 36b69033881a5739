// Package queue wires the durable job runner to a Redis-backed asynq
// queue: producers enqueue a job ID after persisting a PENDING row,
// consumers deliver it to internal/jobs.Runner with late-ack semantics.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskTypeDeidentify is the asynq task type name for a de-identification
// job delivery. Payload is a TaskPayload.
const TaskTypeDeidentify = "deidentify:document"

// TaskPayload is the only data carried on the wire: everything else about
// the job (input key, masking level, providers) lives in the job row
// itself, so the payload never has to be kept in sync with it.
type TaskPayload struct {
	JobID string `json:"job_id"`
}

// NewTask builds the asynq.Task for jobID.
func NewTask(jobID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(TaskPayload{JobID: jobID.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeidentify, payload), nil
}
