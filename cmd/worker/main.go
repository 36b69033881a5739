package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	queueName  string
	runOnce    bool
)

func main() {
	root := &cobra.Command{
		Use:   "redactifai-worker",
		Short: "Runs the PHI de-identification job worker",
		RunE:  runWorker,
	}
	root.Flags().StringVar(&configPath, "config", ".", "directory containing the .env config file")
	root.Flags().StringVar(&queueName, "queue", "", "override the configured queue name")
	root.Flags().BoolVar(&runOnce, "once", false, "process a single delivery then exit (for smoke tests)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := InitializeApp(ctx, configPath, queueName)
	if err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}
	defer cleanup()

	logger := app.Logger
	logger.Info("starting redactifai worker",
		zap.String("queue", app.Config.QueueName),
		zap.Int("concurrency", app.Config.Concurrency),
		zap.String("environment", app.Config.Environment))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker panicked: %v\n%s", r, debug.Stack())
			logger.Error("panic recovered in main", zap.Error(err))
			os.Exit(1)
		}
	}()

	done := make(chan struct{}, 1)
	if runOnce {
		app.Consumer.OnTaskProcessed(func() {
			select {
			case done <- struct{}{}:
			default:
			}
		})
	}

	if err := app.Consumer.Start(); err != nil {
		return fmt.Errorf("start queue consumer: %w", err)
	}

	if runOnce {
		logger.Info("--once set: will shut down after the first job delivery completes")
		select {
		case <-done:
			logger.Info("processed one job, shutting down")
		case <-ctx.Done():
			logger.Info("shutdown signal received before any job was delivered")
		}
	} else {
		<-ctx.Done()
		logger.Info("shutdown signal received, draining in-flight jobs")
	}

	app.Consumer.Stop()
	logger.Info("worker stopped gracefully")
	return nil
}
