// Package main is the entrypoint for the dispatch worker process.
//
// The dispatch worker consumes DispatchJob tasks from the dispatch queue and
// delivers each one over its channel: email via SendGrid, Slack via direct
// message, WhatsApp via Twilio. Channels without configured credentials fall
// back to logging stubs so local environments exercise the full pipeline
// without provider accounts.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"salespulse/internal/config"
	"salespulse/internal/db"
	"salespulse/internal/external"
	"salespulse/internal/notifications/core"
	emailpkg "salespulse/internal/notifications/email"
	slackpkg "salespulse/internal/notifications/slack"
	whatsapppkg "salespulse/internal/notifications/whatsapp"
	"salespulse/internal/queue"
	"salespulse/internal/types"
)

// providerTimeout bounds a single provider HTTP round trip.
const providerTimeout = 10 * time.Second

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
	return &slogAdapter{logger: slog.New(handler).With("service", "dispatch-worker")}
}

// newSenders builds one sender per channel, substituting a logging stub for
// any provider whose credentials are absent.
func newSenders(cfg *config.Config, logger types.Logger) []core.Sender {
	httpClient := &http.Client{Timeout: providerTimeout}

	var emailProvider emailpkg.Provider
	if cfg.Email.SendGridAPIKey.IsSet() {
		emailProvider = external.NewSendGridClient(httpClient, cfg.Email, logger)
	} else {
		logger.Warn("no sendgrid credentials, email deliveries are stubbed")
		emailProvider = external.NewStubProvider("sendgrid", logger)
	}

	var slackProvider slackpkg.Provider
	if cfg.Slack.BotToken.IsSet() {
		slackProvider = external.NewSlackClient(httpClient, cfg.Slack, logger)
	} else {
		logger.Warn("no slack credentials, slack deliveries are stubbed")
		slackProvider = external.NewStubProvider("slack", logger)
	}

	var whatsappProvider whatsapppkg.Provider
	if cfg.WhatsApp.AccountSID.IsSet() && cfg.WhatsApp.AuthToken.IsSet() {
		whatsappProvider = external.NewTwilioClient(httpClient, cfg.WhatsApp, logger)
	} else {
		logger.Warn("no twilio credentials, whatsapp deliveries are stubbed")
		whatsappProvider = external.NewStubProvider("twilio", logger)
	}

	return []core.Sender{
		emailpkg.NewSender(emailProvider, logger),
		slackpkg.NewSender(slackProvider, logger),
		whatsapppkg.NewSender(whatsappProvider, logger),
	}
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
	dispatchQueue := queue.NewSQSQueue(sqsClient, cfg.AWS.DispatchQueueURL, cfg.Workers.LeaseDuration, logger)

	var metrics core.Metrics = core.NoopMetrics{}
	if cfg.AWS.MetricsNamespace != "" {
		metrics = core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricsNamespace, logger)
	}

	store := &core.RepoStore{
		Dispatches:  db.NewDispatchRepository(pool),
		Insights:    db.NewInsightRepository(pool),
		Preferences: db.NewPreferenceRepository(pool),
		Stores:      db.NewStoreRepository(pool),
	}
	dispatcher := core.NewDispatcher(store, newSenders(cfg, logger), metrics, cfg.Workers.MaxDispatchAttempts, logger)
	worker := core.NewWorker(
		dispatchQueue, dispatcher, queue.DefaultBackoff, metrics,
		cfg.Workers.DispatchWorkers, cfg.Workers.ReceiveWait, logger,
	)

	logger.Info("dispatch worker starting",
		"environment", cfg.Environment,
		"workers", cfg.Workers.DispatchWorkers,
	)

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("dispatch worker exited with error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("dispatch worker stopped")
}
