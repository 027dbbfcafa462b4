// Package main is the entrypoint for the sync worker process.
//
// The sync worker consumes SyncStoreJob tasks from the sync queue: it pulls
// each claimed store's latest complete day of sales from Shopify, stores the
// snapshot, runs the insight engine over the trailing window, and fans fresh
// insights out to the dispatch queue.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"salespulse/internal/config"
	"salespulse/internal/db"
	"salespulse/internal/external"
	"salespulse/internal/insight"
	"salespulse/internal/notifications/core"
	"salespulse/internal/queue"
	"salespulse/internal/syncer"
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
	return &slogAdapter{logger: slog.New(handler).With("service", "sync-worker")}
}

// newNarrator wires the narrative backend: the OpenAI client when enabled
// with credentials, a local stub when enabled without them, nil otherwise.
func newNarrator(cfg *config.Config, logger types.Logger) insight.Narrator {
	if !cfg.Narrative.Enabled {
		return nil
	}
	if !cfg.Narrative.APIKey.IsSet() {
		logger.Warn("narration enabled without an API key, using stub narrator")
		return external.StubNarrator{}
	}
	httpClient := &http.Client{Timeout: cfg.Narrative.Timeout}
	return external.NewOpenAIClient(httpClient, cfg.Narrative, logger)
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

	cipher, err := external.NewCredentialCipher(cfg.Shopify.CredentialKey.Unmask())
	if err != nil {
		logger.Error("invalid store credential key", "error", err.Error())
		os.Exit(1)
	}
	shopify, err := external.NewShopifyClient(&http.Client{Timeout: cfg.Shopify.Timeout}, cfg.Shopify, cipher, logger)
	if err != nil {
		logger.Error("failed to build shopify client", "error", err.Error())
		os.Exit(1)
	}

	stores := db.NewStoreRepository(pool)
	snapshots := db.NewSnapshotRepository(pool)
	insights := db.NewInsightRepository(pool)
	preferences := db.NewPreferenceRepository(pool)
	dispatches := db.NewDispatchRepository(pool)

	engine := insight.NewEngine(insight.Config{
		BaselineWindow:  cfg.Insight.BaselineWindow,
		ZScoreThreshold: cfg.Insight.ZScoreThreshold,
		SeverityMediumZ: cfg.Insight.SeverityMediumZ,
		SeverityHighZ:   cfg.Insight.SeverityHighZ,
		MinTrendSlope:   cfg.Insight.MinTrendSlope,
	})
	fanOut := core.NewFanOut(dispatches, dispatchQueue, logger)

	pipeline := syncer.NewSyncer(
		stores, snapshots, insights, preferences,
		shopify, engine, newNarrator(cfg, logger), fanOut,
		cfg.Insight.BaselineWindow+1,
		cfg.Narrative.Timeout,
		logger,
	)
	worker := syncer.NewWorker(
		syncQueue, pipeline, queue.DefaultBackoff,
		cfg.Workers.MaxSyncAttempts, cfg.Workers.SyncWorkers,
		cfg.Workers.ReceiveWait, logger,
	)

	logger.Info("sync worker starting",
		"environment", cfg.Environment,
		"workers", cfg.Workers.SyncWorkers,
	)

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("sync worker exited with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("sync worker stopped")
}
