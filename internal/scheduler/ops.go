package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

// OpsStoreStore is the store surface the ops operations need.
type OpsStoreStore interface {
	Get(ctx context.Context, storeID string) (*types.Store, error)
	ListStatuses(ctx context.Context) ([]*types.StoreStatusView, error)
}

// InsightStore persists and reads insights for the ops surface.
type InsightStore interface {
	InsertIfAbsent(ctx context.Context, ins *types.Insight) (bool, error)
	ListRecentByStore(ctx context.Context, storeID string, limit int) ([]*types.Insight, error)
}

// PreferenceStore reads one user's notification preference.
type PreferenceStore interface {
	GetByUser(ctx context.Context, userID string) (*types.NotificationPreference, error)
}

// DispatchStore reads aggregate dispatch state for the dashboard.
type DispatchStore interface {
	CountByStatus(ctx context.Context) (map[types.DispatchStatus]int64, error)
}

// Publisher records and enqueues deliveries. Implemented by core.FanOut.
type Publisher interface {
	Publish(ctx context.Context, insightID string, deliveries []core.Delivery, testMode bool) (int, error)
}

// Ops implements the manual operations behind the internal HTTP surface:
// immediate sync trigger, test notifications, and the read models for the
// dashboard. It shares the coordinator's claim-then-enqueue path so a
// manual trigger cannot race a scheduled one into a duplicate job.
type Ops struct {
	coordinator *Coordinator
	stores      OpsStoreStore
	insights    InsightStore
	preferences PreferenceStore
	dispatches  DispatchStore
	publisher   Publisher
	now         func() time.Time
	logger      types.Logger
}

// NewOps creates the ops service.
func NewOps(coordinator *Coordinator, stores OpsStoreStore, insights InsightStore, preferences PreferenceStore, dispatches DispatchStore, publisher Publisher, logger types.Logger) *Ops {
	return &Ops{
		coordinator: coordinator,
		stores:      stores,
		insights:    insights,
		preferences: preferences,
		dispatches:  dispatches,
		publisher:   publisher,
		now:         time.Now,
		logger:      logger,
	}
}

// TriggerSync enqueues an immediate sync for one store, going through the
// same claim gate as scheduled cycles. Returns the cycle ID on success, a
// store-not-active conflict for non-active stores, and a sync-pending
// conflict when a claim is already held.
func (o *Ops) TriggerSync(ctx context.Context, storeID string) (string, error) {
	store, err := o.stores.Get(ctx, storeID)
	if err != nil {
		return "", err
	}
	if store.Status != types.StoreStatusActive {
		return "", types.NewAppError(types.ErrCodeConflictStoreNotActive,
			"store is not active and cannot be synced", nil)
	}

	cycleID := "cyc_" + uuid.New().String()
	claimed, err := o.coordinator.claimAndEnqueue(ctx, storeID, cycleID, types.TriggerManual)
	if err != nil {
		return "", err
	}
	if !claimed {
		return "", types.NewAppError(types.ErrCodeConflictSyncPending,
			"a sync is already pending for this store", nil)
	}

	o.logger.Info("manual sync triggered", "store_id", storeID, "cycle_id", cycleID)
	return cycleID, nil
}

// SendTestNotification persists a note insight and fans it out to the user
// in test mode, exercising the full enqueue-dispatch-deliver path. With an
// empty channel every enabled channel is targeted; otherwise delivery is
// restricted to the named one. The alert threshold is bypassed.
func (o *Ops) SendTestNotification(ctx context.Context, userID string, channel types.ChannelType) (string, int, error) {
	if channel != "" && !types.ValidChannel(channel) {
		return "", 0, types.NewAppError(types.ErrCodeValidationBadChannel,
			"unknown channel: "+string(channel), nil)
	}

	pref, err := o.preferences.GetByUser(ctx, userID)
	if err != nil {
		return "", 0, err
	}

	deliveries := core.ResolveTest(pref)
	if channel != "" {
		filtered := deliveries[:0]
		for _, d := range deliveries {
			if d.Channel == channel {
				filtered = append(filtered, d)
			}
		}
		deliveries = filtered
	}
	if len(deliveries) == 0 {
		return "", 0, types.NewAppError(types.ErrCodeValidationBadChannel,
			"no enabled channel with an address to test", nil)
	}

	now := o.now().UTC()
	ins := &types.Insight{
		ID:        "note_" + uuid.New().String(),
		Type:      types.InsightNote,
		Severity:  types.SeverityLow,
		Title:     "Test notification",
		Narrative: "This is a test notification confirming your delivery settings work.",
		Bucket:    now.Truncate(24 * time.Hour),
		CreatedAt: now,
	}
	if _, err := o.insights.InsertIfAbsent(ctx, ins); err != nil {
		return "", 0, err
	}

	enqueued, err := o.publisher.Publish(ctx, ins.ID, deliveries, true)
	if err != nil {
		return "", 0, err
	}

	o.logger.Info("test notification enqueued",
		"user_id", userID,
		"insight_id", ins.ID,
		"deliveries", enqueued,
	)
	return ins.ID, enqueued, nil
}

// StoreStatuses returns connection health and sync recency for every store.
func (o *Ops) StoreStatuses(ctx context.Context) ([]*types.StoreStatusView, error) {
	return o.stores.ListStatuses(ctx)
}

// DispatchCounts returns per-status dispatch totals for the dashboard's
// delivery-health panel.
func (o *Ops) DispatchCounts(ctx context.Context) (map[types.DispatchStatus]int64, error) {
	return o.dispatches.CountByStatus(ctx)
}

// RecentInsights returns a store's newest insights, capped by the
// repository's limit rules.
func (o *Ops) RecentInsights(ctx context.Context, storeID string, limit int) ([]*types.Insight, error) {
	if _, err := o.stores.Get(ctx, storeID); err != nil {
		return nil, err
	}
	return o.insights.ListRecentByStore(ctx, storeID, limit)
}
