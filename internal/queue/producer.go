package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Producer enqueues de-identification jobs. It is the queue-side half of
// the contract spec.md §6 assigns the inbound HTTP surface: persist a
// PENDING row, then enqueue.
type Producer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
}

// NewProducer connects a Producer to redisURL.
func NewProducer(redisURL, queueName string, maxRetry int) (*Producer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Producer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		maxRetry:  maxRetry,
	}, nil
}

// Enqueue submits jobID for processing.
func (p *Producer) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	task, err := NewTask(jobID)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(p.queueName), asynq.MaxRetry(p.maxRetry))
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (p *Producer) Close() error {
	return p.client.Close()
}
