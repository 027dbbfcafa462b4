package types

// SyncStoreJob is the queue payload that asks a sync worker to pull one
// store's latest bucket and run the insight pipeline. The envelope carries
// no mutable state: (StoreID, CycleID) identifies the work, and redelivery
// of the same envelope is safe because every sub-step is idempotent.
type SyncStoreJob struct {
	StoreID string      `json:"store_id" validate:"required"`
	CycleID string      `json:"cycle_id" validate:"required"`
	Trigger SyncTrigger `json:"trigger"`
	TraceID string      `json:"trace_id"`
}

// DispatchJob is the queue payload that asks a dispatch worker to deliver
// one insight to one user over one channel. (InsightID, Channel, UserID) is
// the idempotency key; the dispatcher collapses redeliveries against the
// DispatchRecord for that key.
type DispatchJob struct {
	InsightID string      `json:"insight_id" validate:"required"`
	Channel   ChannelType `json:"channel" validate:"required"`
	UserID    string      `json:"user_id" validate:"required"`

	// TestMode marks diagnostics traffic from send_test_notification. It
	// bypassed the preference threshold at enqueue time; delivery state is
	// still tracked normally.
	TestMode bool   `json:"test_mode"`
	TraceID  string `json:"trace_id"`
}
