package types

// StoreStatus tracks the health of a connected store. Transitions are owned
// by the sync pipeline: the coordinator enqueues work only for active stores,
// and the sync worker moves a store to error after repeated fetch failures
// or an authentication rejection.
type StoreStatus string

const (
	StoreStatusActive       StoreStatus = "active"
	StoreStatusError        StoreStatus = "error"
	StoreStatusDisconnected StoreStatus = "disconnected"
)

// Platform identifies the e-commerce platform a store is connected through.
type Platform string

const (
	PlatformShopify Platform = "shopify"
)

// InsightType categorizes what the engine detected.
type InsightType string

const (
	InsightAnomaly InsightType = "anomaly"
	InsightTrend   InsightType = "trend"
	InsightNote    InsightType = "note"
)

// Severity buckets an insight's deviation magnitude.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Metric names the sales aggregate an insight refers to.
type Metric string

const (
	MetricRevenue   Metric = "revenue"
	MetricOrders    Metric = "orders"
	MetricCustomers Metric = "customers"
)

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelEmail    ChannelType = "email"
	ChannelSlack    ChannelType = "slack"
	ChannelWhatsApp ChannelType = "whatsapp"
)

// AllChannels lists every supported channel in a stable order.
var AllChannels = []ChannelType{ChannelEmail, ChannelSlack, ChannelWhatsApp}

// ValidChannel reports whether ct names a supported channel.
func ValidChannel(ct ChannelType) bool {
	switch ct {
	case ChannelEmail, ChannelSlack, ChannelWhatsApp:
		return true
	}
	return false
}

// DispatchStatus is the state machine value of a DispatchRecord.
//
//	pending -> sending -> sent
//	                   -> retrying -> sending -> ...
//	                   -> failed
//
// sent and failed are terminal; once a record reaches either, redelivered
// jobs for the same key are acknowledged as duplicates without a provider
// call.
type DispatchStatus string

const (
	DispatchPending  DispatchStatus = "pending"
	DispatchSending  DispatchStatus = "sending"
	DispatchRetrying DispatchStatus = "retrying"
	DispatchSent     DispatchStatus = "sent"
	DispatchFailed   DispatchStatus = "failed"
)

// Terminal reports whether no further transition may occur from s.
func (s DispatchStatus) Terminal() bool {
	return s == DispatchSent || s == DispatchFailed
}

// DigestFrequency controls how often a user wants non-urgent insights
// bundled instead of delivered immediately.
type DigestFrequency string

const (
	DigestImmediate DigestFrequency = "immediate"
	DigestDaily     DigestFrequency = "daily"
)

// SyncTrigger records why a SyncStoreJob was enqueued.
type SyncTrigger string

const (
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerManual    SyncTrigger = "manual"
)
