// Package syncer implements the sync worker: it consumes SyncStoreJob tasks,
// pulls one store's latest complete day of sales from the platform, runs the
// insight engine over the stored window, and fans resulting insights out to
// the dispatch queue. Every sub-step is idempotent, so a redelivered job
// replays harmlessly.
package syncer

import (
	"context"
	"errors"
	"time"

	"salespulse/internal/insight"
	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

// Outcome summarizes one sync attempt for the worker loop.
type Outcome string

const (
	// OutcomeSynced means the pipeline completed and the task can be acked.
	OutcomeSynced Outcome = "synced"

	// OutcomeSkipped means the job no longer applies (store gone or no
	// longer active) and the task can be acked.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeRetry means a transient failure; the task should be redelivered
	// with backoff. The sync claim is kept so the coordinator does not
	// enqueue a competing job; a crashed retry chain is bounded by the
	// claim TTL and the poison cap.
	OutcomeRetry Outcome = "retry"

	// OutcomeFailed means a permanent failure; the store has been moved to
	// error and the task can be acked.
	OutcomeFailed Outcome = "failed"
)

// StoreStore is the store-row surface the syncer needs.
type StoreStore interface {
	Get(ctx context.Context, storeID string) (*types.Store, error)
	SetStatus(ctx context.Context, storeID string, status types.StoreStatus, reason string) error
	UpdateLastSynced(ctx context.Context, storeID string, syncedAt time.Time) error
	ReleaseSyncClaim(ctx context.Context, storeID string) error
}

// SnapshotStore persists and reads bucketed sales aggregates.
type SnapshotStore interface {
	InsertIfAbsent(ctx context.Context, snap *types.SalesSnapshot) (bool, error)
	ListWindow(ctx context.Context, storeID string, upTo time.Time, window int) ([]*types.SalesSnapshot, error)
}

// InsightStore persists engine findings.
type InsightStore interface {
	InsertIfAbsent(ctx context.Context, ins *types.Insight) (bool, error)
}

// PreferenceStore reads owners' notification preferences.
type PreferenceStore interface {
	ListByUsers(ctx context.Context, userIDs []string) ([]*types.NotificationPreference, error)
}

// PlatformClient fetches one day of aggregated sales from the store's
// platform. Implemented by external.ShopifyClient.
type PlatformClient interface {
	FetchDailySnapshot(ctx context.Context, store *types.Store, bucket time.Time) (*types.SalesSnapshot, error)
}

// Publisher records and enqueues deliveries for a fresh insight.
// Implemented by core.FanOut.
type Publisher interface {
	Publish(ctx context.Context, insightID string, deliveries []core.Delivery, testMode bool) (int, error)
}

// Syncer runs the per-store sync pipeline.
type Syncer struct {
	stores      StoreStore
	snapshots   SnapshotStore
	insights    InsightStore
	preferences PreferenceStore
	platform    PlatformClient
	engine      *insight.Engine
	narrator    insight.Narrator
	publisher   Publisher

	windowSize       int
	narrationTimeout time.Duration
	now              func() time.Time
	logger           types.Logger
}

// NewSyncer wires the pipeline. narrator may be nil to disable narration;
// windowSize is the baseline bucket count plus the current bucket.
func NewSyncer(
	stores StoreStore,
	snapshots SnapshotStore,
	insights InsightStore,
	preferences PreferenceStore,
	platform PlatformClient,
	engine *insight.Engine,
	narrator insight.Narrator,
	publisher Publisher,
	windowSize int,
	narrationTimeout time.Duration,
	logger types.Logger,
) *Syncer {
	return &Syncer{
		stores:           stores,
		snapshots:        snapshots,
		insights:         insights,
		preferences:      preferences,
		platform:         platform,
		engine:           engine,
		narrator:         narrator,
		publisher:        publisher,
		windowSize:       windowSize,
		narrationTimeout: narrationTimeout,
		now:              time.Now,
		logger:           logger,
	}
}

// Sync executes one SyncStoreJob end to end: fetch the bucket, persist the
// snapshot, analyze the window, persist and fan out fresh insights, then
// mark the store synced and release its claim.
//
// Transient failures return OutcomeRetry with the claim intact. Permanent
// failures move the store to error status and release the claim so the
// operator-visible state explains why syncs stopped.
func (s *Syncer) Sync(ctx context.Context, job types.SyncStoreJob) (Outcome, error) {
	log := s.logger.With("store_id", job.StoreID, "cycle_id", job.CycleID)

	store, err := s.stores.Get(ctx, job.StoreID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundStore) {
			log.Warn("store vanished after claim, dropping sync job")
			return OutcomeSkipped, nil
		}
		return OutcomeRetry, err
	}
	if store.Status != types.StoreStatusActive {
		log.Warn("store no longer active, dropping sync job", "status", string(store.Status))
		s.releaseClaim(ctx, job.StoreID, log)
		return OutcomeSkipped, nil
	}

	bucket := PreviousBucket(s.now())

	snap, err := s.platform.FetchDailySnapshot(ctx, store, bucket)
	if err != nil {
		if types.IsPermanent(err) {
			return s.failPermanent(ctx, job.StoreID, err, log)
		}
		return OutcomeRetry, err
	}

	created, err := s.snapshots.InsertIfAbsent(ctx, snap)
	if err != nil {
		return OutcomeRetry, err
	}
	if !created {
		log.Info("bucket already captured, keeping stored aggregates", "bucket", bucket.Format("2006-01-02"))
	}

	window, err := s.snapshots.ListWindow(ctx, job.StoreID, bucket, s.windowSize)
	if err != nil {
		return OutcomeRetry, err
	}

	findings := s.engine.Analyze(window)
	if len(findings) > 0 {
		current := window[len(window)-1]
		insight.Augment(ctx, s.narrator, findings, current, s.narrationTimeout, log)
	}

	fresh := make([]*types.Insight, 0, len(findings))
	for _, ins := range findings {
		inserted, err := s.insights.InsertIfAbsent(ctx, ins)
		if err != nil {
			return OutcomeRetry, err
		}
		if inserted {
			fresh = append(fresh, ins)
		}
	}

	// Fan out over every finding, not only the freshly inserted ones. A
	// replayed job sees inserted == false for already-stored insights, but
	// their deliveries may never have been enqueued if the prior attempt
	// died between insert and publish. Publish dedupes against the dispatch
	// records, so re-offering a stored insight enqueues nothing extra.
	if len(findings) > 0 {
		if err := s.fanOut(ctx, store, findings, log); err != nil {
			return OutcomeRetry, err
		}
	}

	if err := s.stores.UpdateLastSynced(ctx, job.StoreID, s.now()); err != nil {
		return OutcomeRetry, err
	}
	s.releaseClaim(ctx, job.StoreID, log)

	log.Info("store synced",
		"bucket", bucket.Format("2006-01-02"),
		"findings", len(findings),
		"fresh_insights", len(fresh),
	)
	return OutcomeSynced, nil
}

// fanOut resolves owner preferences and publishes deliveries for each
// insight. Publishing is idempotent per dispatch key, so a retried job that
// re-runs this step only enqueues deliveries that never made it out.
func (s *Syncer) fanOut(ctx context.Context, store *types.Store, findings []*types.Insight, log types.Logger) error {
	if len(store.OwnerIDs) == 0 {
		return nil
	}

	prefs, err := s.preferences.ListByUsers(ctx, store.OwnerIDs)
	if err != nil {
		return err
	}

	for _, ins := range findings {
		deliveries := core.Resolve(ins, prefs)
		if len(deliveries) == 0 {
			continue
		}
		enqueued, err := s.publisher.Publish(ctx, ins.ID, deliveries, false)
		if err != nil {
			return err
		}
		log.Info("insight fanned out",
			"insight_id", ins.ID,
			"severity", string(ins.Severity),
			"deliveries", enqueued,
		)
	}
	return nil
}

// Abandon contains a poison job: the store is moved to error with the given
// reason and its sync claim is released. Called by the worker when a job
// exceeds the delivery cap.
func (s *Syncer) Abandon(ctx context.Context, storeID, reason string) error {
	if err := s.stores.SetStatus(ctx, storeID, types.StoreStatusError, reason); err != nil {
		return err
	}
	return s.stores.ReleaseSyncClaim(ctx, storeID)
}

func (s *Syncer) failPermanent(ctx context.Context, storeID string, cause error, log types.Logger) (Outcome, error) {
	log.Error("permanent sync failure, marking store error", "error", cause.Error())

	reason := cause.Error()
	var appErr *types.AppError
	if errors.As(cause, &appErr) {
		reason = appErr.Message
	}
	if err := s.stores.SetStatus(ctx, storeID, types.StoreStatusError, reason); err != nil {
		// Leave the claim in place; the status write will be retried on
		// redelivery and the TTL bounds the blockage either way.
		return OutcomeRetry, err
	}
	s.releaseClaim(ctx, storeID, log)
	return OutcomeFailed, cause
}

func (s *Syncer) releaseClaim(ctx context.Context, storeID string, log types.Logger) {
	if err := s.stores.ReleaseSyncClaim(ctx, storeID); err != nil {
		// The claim TTL expires it regardless; the next cycle is delayed,
		// not lost.
		log.Error("failed to release sync claim", "error", err.Error())
	}
}

// PreviousBucket returns midnight UTC of the last complete calendar day
// before now. Syncing the closed bucket rather than the in-progress one
// keeps aggregates final on first write.
func PreviousBucket(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
}
