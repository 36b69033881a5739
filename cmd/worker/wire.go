//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"github.com/redactifai/redactifai-worker/internal/config"
	"github.com/redactifai/redactifai-worker/internal/logging"
)

// configSet: Wire set for configuration.
var configSet = wire.NewSet(
	config.LoadConfig,
)

// loggingSet: Wire set for the zap logger.
var loggingSet = wire.NewSet(
	logging.NewLogger,
)

// storeSet: Wire set for the storage backend and its OCR/PHI companions.
var storeSet = wire.NewSet(
	provideDB,
	provideStore,
	provideOCRService,
	providePHIDetector,
)

// pipelineSet: Wire set for the de-identification pipeline and job runner.
var pipelineSet = wire.NewSet(
	providePipeline,
	provideRunner,
)

// queueSet: Wire set for the asynq producer/consumer pair.
var queueSet = wire.NewSet(
	provideProducer,
	provideConsumer,
)

// InitializeApp assembles an *App for the given config path using Wire.
func InitializeApp(ctx context.Context, configPath, queueOverride string) (*App, func(), error) {
	panic(wire.Build(
		configSet,
		loggingSet,
		storeSet,
		pipelineSet,
		queueSet,
		wire.Struct(new(App), "*"),
	))
}
