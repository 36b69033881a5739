package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/jobs"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	RedisURL        string
	QueueName       string
	Concurrency     int
	RetryBaseDelay  time.Duration
	RetryMaxBackoff time.Duration
	TaskTimeLimit   time.Duration
	Runner          *jobs.Runner
	Logger          *zap.Logger

	// OnTaskProcessed, if set, is called after every handler invocation
	// that resolves the delivery (success or terminal failure — not on a
	// retryable error, since the task isn't actually done yet). Used by
	// the worker binary's --once flag to shut down after a single job.
	OnTaskProcessed func()
}

// Consumer runs an asynq server delivering TaskTypeDeidentify tasks to a
// jobs.Runner, one at a time per worker slot (prefetch effectively 1: each
// handler invocation blocks until the job's pipeline run finishes).
type Consumer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *jobs.Runner
	logger *zap.Logger
	cfg    ConsumerConfig
}

// NewConsumer constructs a Consumer from cfg.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("Runner is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	logger := cfg.Logger.Named("queue.consumer")

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 10,
			"default":     1,
		},
		RetryDelayFunc: exponentialBackoffWithJitter(cfg.RetryBaseDelay, cfg.RetryMaxBackoff),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("task delivery failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})

	c := &Consumer{
		server: server,
		mux:    asynq.NewServeMux(),
		runner: cfg.Runner,
		logger: logger,
		cfg:    cfg,
	}
	c.mux.HandleFunc(TaskTypeDeidentify, c.handleDeidentify)
	return c, nil
}

// OnTaskProcessed installs or replaces the post-handler hook (see
// ConsumerConfig.OnTaskProcessed).
func (c *Consumer) OnTaskProcessed(fn func()) {
	c.cfg.OnTaskProcessed = fn
}

// Start runs the asynq server in the background. Call Stop to shut it
// down gracefully.
func (c *Consumer) Start() error {
	return c.server.Start(c.mux)
}

// Stop waits for in-flight tasks to finish (up to asynq's own shutdown
// timeout) and stops pulling new ones.
func (c *Consumer) Stop() {
	c.server.Shutdown()
}

// handleDeidentify is the asynq handler for TaskTypeDeidentify. It returns
// nil whenever the runner does not ask for a retry: the job row was
// committed COMPLETE or FAILED, or the row could not be loaded, or writing
// FAILED itself errored. Any other error leaves the task for asynq's own
// redelivery, which is what actually enforces at-most-one concurrent
// PROCESSING attempt per job (asynq's per-task unique lease).
func (c *Consumer) handleDeidentify(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal task payload: %w", err)
	}
	jobID, err := uuid.Parse(payload.JobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", payload.JobID, err)
	}

	attempt := 1
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		attempt = retried + 1
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.TaskTimeLimit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.TaskTimeLimit)
		defer cancel()
	}

	outcome, err := c.runner.Run(runCtx, jobID, attempt)
	if err != nil && outcome.Retry {
		return err
	}
	if err != nil {
		c.logger.Warn("job failed terminally, acknowledging delivery",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
	if c.cfg.OnTaskProcessed != nil {
		c.cfg.OnTaskProcessed()
	}
	return nil
}

// exponentialBackoffWithJitter mirrors the adverant worker's RetryDelayFunc
// shape (exponential with a hard cap) plus up to 20% jitter so a burst of
// simultaneously-failing jobs doesn't retry in lockstep.
func exponentialBackoffWithJitter(base, max time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = 5 * time.Second
	}
	if max <= 0 {
		max = 10 * time.Minute
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		delay := base * time.Duration(1<<uint(n))
		if delay > max || delay <= 0 {
			delay = max
		}
		jitter := time.Duration(rand.Int63n(int64(delay) / 5))
		return delay + jitter
	}
}
