package logging

import "context"

type contextKey string

const jobIDKey contextKey = "jobID"

// WithJobID attaches a job id to ctx for structured logging downstream.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext returns the job id attached by WithJobID, or "" if none.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey).(string)
	return id
}
