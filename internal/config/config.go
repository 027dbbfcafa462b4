// Package config defines the global configuration for the salespulse
// pipeline. Configuration is loaded once at process start and is immutable
// thereafter. It follows 12-Factor principles: all values come from the
// environment (optionally seeded by a .env file), and any missing required
// value fails the process immediately.
package config

import (
	"time"

	"salespulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials to prevent accidental logging.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"salespulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Database  DatabaseConfig
	AWS       AWSConfig
	Ops       OpsConfig
	Shopify   ShopifyConfig
	Email     EmailConfig
	Slack     SlackConfig
	WhatsApp  WhatsAppConfig
	Narrative NarrativeConfig
	Insight   InsightConfig
	Scheduler SchedulerConfig
	Workers   WorkerConfig
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds queue URLs and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	SyncQueueURL     string `envconfig:"SQS_SYNC_QUEUE" validate:"required,url"`
	DispatchQueueURL string `envconfig:"SQS_DISPATCH_QUEUE" validate:"required,url"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`

	// MetricsNamespace is the CloudWatch namespace for pipeline telemetry.
	// Empty disables metric emission (local development).
	MetricsNamespace string `envconfig:"CLOUDWATCH_NAMESPACE" default:""`
}

// OpsConfig holds the internal ops HTTP server settings.
type OpsConfig struct {
	Port string `envconfig:"OPS_PORT" default:"8081"`
}

// ShopifyConfig holds platform API settings shared across stores. Per-store
// access tokens live sealed on the Store row, not here.
type ShopifyConfig struct {
	APIVersion string        `envconfig:"SHOPIFY_API_VERSION" default:"2024-10"`
	Timeout    time.Duration `envconfig:"SHOPIFY_TIMEOUT" default:"15s"`

	// CredentialKey is the 32-byte hex key used to seal store access tokens
	// at rest.
	CredentialKey SecretString `envconfig:"STORE_CREDENTIAL_KEY" validate:"required"`
}

// EmailConfig holds the SendGrid delivery settings.
type EmailConfig struct {
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"insights@salespulse.io"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"SalesPulse Insights"`
}

// SlackConfig holds the bot credentials for direct-message delivery.
type SlackConfig struct {
	BotToken SecretString `envconfig:"SLACK_BOT_TOKEN"`
}

// WhatsAppConfig holds the Twilio credentials for WhatsApp delivery.
type WhatsAppConfig struct {
	AccountSID SecretString `envconfig:"TWILIO_ACCOUNT_SID"`
	AuthToken  SecretString `envconfig:"TWILIO_AUTH_TOKEN"`
	FromNumber string       `envconfig:"TWILIO_WHATSAPP_FROM"`
}

// NarrativeConfig holds the optional language-model augmentation settings.
// Narration is best-effort: when disabled or failing, insights are emitted
// with an empty narrative.
type NarrativeConfig struct {
	Enabled bool          `envconfig:"NARRATIVE_ENABLED" default:"false"`
	APIKey  SecretString  `envconfig:"OPENAI_API_KEY"`
	Model   string        `envconfig:"NARRATIVE_MODEL" default:"gpt-4o-mini"`
	BaseURL string        `envconfig:"NARRATIVE_BASE_URL" default:"https://api.openai.com/v1"`
	Timeout time.Duration `envconfig:"NARRATIVE_TIMEOUT" default:"10s"`
}

// InsightConfig holds the detection parameters. These are product knobs,
// not structural constants; the engine reads them as data.
type InsightConfig struct {
	// BaselineWindow is the trailing bucket count used as the comparison
	// population for anomaly detection.
	BaselineWindow int `envconfig:"INSIGHT_BASELINE_WINDOW" default:"7" validate:"min=2"`

	// ZScoreThreshold flags an anomaly when |z| meets or exceeds it.
	ZScoreThreshold float64 `envconfig:"INSIGHT_ZSCORE_THRESHOLD" default:"2.0" validate:"gt=0"`

	// Severity cutoffs on |z|: >= High -> high, >= Medium -> medium, else low.
	SeverityMediumZ float64 `envconfig:"INSIGHT_SEVERITY_MEDIUM_Z" default:"3.0"`
	SeverityHighZ   float64 `envconfig:"INSIGHT_SEVERITY_HIGH_Z" default:"4.0"`

	// MinTrendSlope is the minimum mean per-bucket relative change for a
	// monotonic run to count as a trend (0.03 = 3% per bucket).
	MinTrendSlope float64 `envconfig:"INSIGHT_MIN_TREND_SLOPE" default:"0.03"`
}

// SchedulerConfig holds coordinator cadence settings.
type SchedulerConfig struct {
	// TickInterval is the cycle cadence.
	TickInterval time.Duration `envconfig:"SCHEDULER_TICK_INTERVAL" default:"1h"`

	// SyncClaimTTL is how long a store's sync claim blocks re-enqueue before
	// it is considered stale (crashed worker) and may be re-claimed.
	SyncClaimTTL time.Duration `envconfig:"SCHEDULER_SYNC_CLAIM_TTL" default:"2h"`
}

// WorkerConfig holds pool sizes and attempt caps.
type WorkerConfig struct {
	SyncWorkers     int `envconfig:"SYNC_WORKERS" default:"4" validate:"min=1"`
	DispatchWorkers int `envconfig:"DISPATCH_WORKERS" default:"8" validate:"min=1"`

	// MaxSyncAttempts caps queue deliveries of one SyncStoreJob before the
	// job is contained: store marked error, job acknowledged.
	MaxSyncAttempts int `envconfig:"MAX_SYNC_ATTEMPTS" default:"5" validate:"min=1"`

	// MaxDispatchAttempts caps transient delivery retries before a dispatch
	// becomes terminally failed.
	MaxDispatchAttempts int `envconfig:"MAX_DISPATCH_ATTEMPTS" default:"3" validate:"min=1"`

	// ReceiveWait is the long-poll duration for queue receives.
	ReceiveWait time.Duration `envconfig:"QUEUE_RECEIVE_WAIT" default:"20s"`

	// LeaseDuration is the queue visibility window a worker holds per task.
	LeaseDuration time.Duration `envconfig:"QUEUE_LEASE_DURATION" default:"5m"`
}
