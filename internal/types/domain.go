package types

import (
	"time"
)

// Store is a connected merchant store. Credentials are sealed at rest; the
// core pipeline treats AccessToken as an opaque handle and only the platform
// client unseals it.
type Store struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Platform    Platform    `json:"platform"`
	StoreURL    string      `json:"store_url"`
	AccessToken []byte      `json:"-"` // sealed ciphertext, see external.CredentialCipher
	Status      StoreStatus `json:"status"`
	OwnerIDs    []string    `json:"owner_ids"`

	// Sync-claim fields. A store holds at most one outstanding SyncStoreJob;
	// the claim is taken by the coordinator before enqueue and released by
	// the worker on acknowledgment. Stale claims expire via the claim TTL.
	SyncPendingCycle string    `json:"sync_pending_cycle,omitempty"`
	SyncClaimedAt    time.Time `json:"sync_claimed_at,omitempty"`

	LastSyncedAt time.Time `json:"last_synced_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SalesSnapshot is one store's aggregate metrics for one bucket (calendar
// day, UTC). Rows are append-only: a (store, bucket) pair is written at most
// once, and a re-sync of an existing bucket is a no-op. This keeps the
// insight engine's baseline stable across job redeliveries.
type SalesSnapshot struct {
	StoreID       string    `json:"store_id"`
	Bucket        time.Time `json:"bucket"` // midnight UTC of the bucket day
	Revenue       float64   `json:"revenue"`
	OrderCount    int       `json:"order_count"`
	CustomerCount int       `json:"customer_count"`
	Currency      string    `json:"currency"`

	// RawPayload is the zstd-compressed platform response the aggregates were
	// derived from, retained for reprocessing and audit.
	RawPayload []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Metrics returns the snapshot's metric values keyed by metric name.
func (s *SalesSnapshot) Metrics() map[Metric]float64 {
	return map[Metric]float64{
		MetricRevenue:   s.Revenue,
		MetricOrders:    float64(s.OrderCount),
		MetricCustomers: float64(s.CustomerCount),
	}
}

// Insight is a single finding produced by the insight engine. Immutable
// after creation. The ID is deterministic over (store, bucket, type, metric)
// so a redelivered sync job re-inserting the same finding collapses to one
// row.
type Insight struct {
	ID      string      `json:"id"`
	StoreID string      `json:"store_id"`
	Type    InsightType `json:"type"`
	Metric  Metric      `json:"metric"`

	// Magnitude is the absolute percent deviation from the expected value
	// (0.40 = 40%). Preference thresholds compare against this.
	Magnitude float64 `json:"magnitude"`

	// ZScore is the signed deviation in baseline standard deviations.
	// Zero for trend and note insights.
	ZScore float64 `json:"z_score,omitempty"`

	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Narrative string    `json:"narrative,omitempty"`
	Bucket    time.Time `json:"bucket"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationPreference holds a user's delivery settings. Written by the
// settings surface (out of scope here); the pipeline only reads it.
type NotificationPreference struct {
	UserID string `json:"user_id"`

	EmailEnabled    bool `json:"email_enabled"`
	SlackEnabled    bool `json:"slack_enabled"`
	WhatsAppEnabled bool `json:"whatsapp_enabled"`

	Email          string `json:"email,omitempty"`
	SlackUserID    string `json:"slack_user_id,omitempty"`
	WhatsAppNumber string `json:"whatsapp_number,omitempty"`

	// AlertThreshold is the minimum insight magnitude (percent deviation,
	// 0.10 = 10%) the user wants alerted on. Comparison is inclusive: an
	// insight at exactly the threshold is delivered.
	AlertThreshold float64 `json:"alert_threshold"`

	DigestFrequency DigestFrequency `json:"digest_frequency"`
	Timezone        string          `json:"timezone"`
}

// Enabled reports whether the given channel is switched on.
func (p *NotificationPreference) Enabled(ct ChannelType) bool {
	switch ct {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSlack:
		return p.SlackEnabled
	case ChannelWhatsApp:
		return p.WhatsAppEnabled
	}
	return false
}

// Address returns the user's handle for the given channel, or "" if unset.
func (p *NotificationPreference) Address(ct ChannelType) string {
	switch ct {
	case ChannelEmail:
		return p.Email
	case ChannelSlack:
		return p.SlackUserID
	case ChannelWhatsApp:
		return p.WhatsAppNumber
	}
	return ""
}

// DispatchID builds the deterministic dispatch record ID for one delivery
// triple. Two jobs for the same triple collapse to the same row.
func DispatchID(insightID string, channel ChannelType, userID string) string {
	return "disp_" + insightID + "_" + string(channel) + "_" + userID
}

// DispatchRecord tracks delivery of one insight to one user over one
// channel. The (insight, channel, user) triple is the idempotency key: at
// most one record exists per triple, and at most one ever reaches sent,
// even under at-least-once queue redelivery.
type DispatchRecord struct {
	ID            string         `json:"id"`
	InsightID     string         `json:"insight_id"`
	UserID        string         `json:"user_id"`
	Channel       ChannelType    `json:"channel"`
	Status        DispatchStatus `json:"status"`
	AttemptCount  int            `json:"attempt_count"`
	LastError     string         `json:"last_error,omitempty"`
	ProviderMsgID string         `json:"provider_message_id,omitempty"`
	SentAt        time.Time      `json:"sent_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StoreStatusView is the read model served to the dashboard by the ops
// surface: connection health plus sync recency for one store.
type StoreStatusView struct {
	StoreID      string      `json:"store_id"`
	Name         string      `json:"name"`
	Status       StoreStatus `json:"status"`
	LastSyncedAt time.Time   `json:"last_synced_at,omitempty"`
	LastError    string      `json:"last_error,omitempty"`
}
