// Package main is the entrypoint for the scheduler process.
//
// The scheduler runs two long-lived components under one process:
//   - the sync coordinator, which ticks on a fixed cadence and enqueues one
//     SyncStoreJob per active store per cycle, and
//   - the internal ops HTTP server, which serves manual sync triggers, test
//     notifications, and the store/insight read models.
//
// Both shut down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"salespulse/internal/config"
	"salespulse/internal/db"
	"salespulse/internal/notifications/core"
	"salespulse/internal/ops"
	"salespulse/internal/queue"
	"salespulse/internal/scheduler"
	"salespulse/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog satisfies Info, Error, and Warn directly, but its With returns
// *slog.Logger rather than types.Logger, so an adapter is needed.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func newLogger(level string) types.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &slogAdapter{logger: slog.New(handler).With("service", "scheduler")}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err.Error())
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("failed to load AWS configuration", "error", err.Error())
		os.Exit(1)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	syncQueue := queue.NewSQSQueue(sqsClient, cfg.AWS.SyncQueueURL, cfg.Workers.LeaseDuration, logger)
	dispatchQueue := queue.NewSQSQueue(sqsClient, cfg.AWS.DispatchQueueURL, cfg.Workers.LeaseDuration, logger)

	stores := db.NewStoreRepository(pool)
	insights := db.NewInsightRepository(pool)
	preferences := db.NewPreferenceRepository(pool)
	dispatches := db.NewDispatchRepository(pool)

	coordinator := scheduler.NewCoordinator(stores, syncQueue, cfg.Scheduler.TickInterval, cfg.Scheduler.SyncClaimTTL, logger)
	fanOut := core.NewFanOut(dispatches, dispatchQueue, logger)
	opsService := scheduler.NewOps(coordinator, stores, insights, preferences, dispatches, fanOut, logger)
	server := ops.NewServer(opsService, pool, logger)

	logger.Info("scheduler starting",
		"environment", cfg.Environment,
		"tick_interval", cfg.Scheduler.TickInterval.String(),
		"ops_port", cfg.Ops.Port,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coordinator.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx, ":"+cfg.Ops.Port) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("scheduler exited with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("scheduler stopped")
}
