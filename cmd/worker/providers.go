package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/redactifai/redactifai-worker/internal/config"
	"github.com/redactifai/redactifai-worker/internal/docproc"
	"github.com/redactifai/redactifai-worker/internal/jobs"
	"github.com/redactifai/redactifai-worker/internal/masker"
	"github.com/redactifai/redactifai-worker/internal/matcher"
	"github.com/redactifai/redactifai-worker/internal/ocr"
	"github.com/redactifai/redactifai-worker/internal/phidetect"
	"github.com/redactifai/redactifai-worker/internal/pipeline"
	"github.com/redactifai/redactifai-worker/internal/queue"
	"github.com/redactifai/redactifai-worker/internal/storage"
	"github.com/redactifai/redactifai-worker/pkg/database/postgres"
)

// App bundles every long-lived dependency the worker binary needs, wired
// together by InitializeApp.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	DB       *pgxpool.Pool
	Producer *queue.Producer
	Consumer *queue.Consumer
}

// provideDB opens the job-store connection pool.
func provideDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	return postgres.NewPostgresDB(ctx, cfg, logger)
}

// provideStore picks the storage backend per cfg.StorageType, matching the
// teacher's "cloud vs local" switch in its own storage wiring.
func provideStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	key := []byte(cfg.FileEncryptionKey)
	if cfg.StorageType == "cloud" {
		return storage.NewS3Store(ctx, logger, cfg.AWSRegion, cfg.PHIBucket, cfg.CleanBucket, key)
	}
	return storage.NewLocalStore(logger, cfg.LocalStorageRoot, key)
}

func provideOCRService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ocr.Service, error) {
	return ocr.NewGoogleVisionAdapter(ctx, logger, "")
}

func providePHIDetector(cfg *config.Config, logger *zap.Logger) *phidetect.Detector {
	adapter := phidetect.NewGeminiAdapter(cfg.GeminiAPIKey, "", cfg.GeminiAPITimeout, logger)
	return phidetect.New(adapter, logger, phidetect.WithStrictCustomLevel(cfg.StrictCustomLevel))
}

func provideMatcher(cfg *config.Config, logger *zap.Logger) *matcher.Matcher {
	return matcher.New(logger,
		matcher.WithFuzzyThreshold(cfg.FuzzyMatchThreshold),
		matcher.WithBoxPaddingPx(cfg.MaskPadPx),
		matcher.WithConfidenceThreshold(cfg.MatchConfidenceFloor))
}

func providePipeline(cfg *config.Config, logger *zap.Logger, ocrSvc ocr.Service, detector *phidetect.Detector) (*pipeline.Pipeline, error) {
	dp := docproc.New(docproc.WithStreamingThreshold(cfg.StreamingThreshold))
	m := provideMatcher(cfg, logger)
	mk, err := masker.New(logger,
		masker.WithDebugMode(cfg.MaskDebugMode),
		masker.WithEnvironment(cfg.Environment))
	if err != nil {
		return nil, err
	}
	return pipeline.New(logger, dp, ocrSvc, detector, m, mk,
		pipeline.WithBatchSize(cfg.BatchSize),
		pipeline.WithFailOpen(cfg.FailOpenOnBatchErr)), nil
}

func provideRunner(db *pgxpool.Pool, store storage.Store, p *pipeline.Pipeline, logger *zap.Logger, cfg *config.Config) *jobs.Runner {
	repo := jobs.NewPostgresRepository(db, logger)
	return jobs.NewRunner(repo, store, p, logger, cfg.MaxRetries)
}

func provideProducer(cfg *config.Config) (*queue.Producer, error) {
	return queue.NewProducer(cfg.RedisURL, cfg.QueueName, cfg.MaxRetries)
}

func provideConsumer(cfg *config.Config, runner *jobs.Runner, logger *zap.Logger) (*queue.Consumer, error) {
	return queue.NewConsumer(queue.ConsumerConfig{
		RedisURL:        cfg.RedisURL,
		QueueName:       cfg.QueueName,
		Concurrency:     cfg.Concurrency,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		RetryMaxBackoff: cfg.RetryMaxBackoff,
		TaskTimeLimit:   cfg.TaskTimeLimit,
		Runner:          runner,
		Logger:          logger,
	})
}
