// Package scheduler drives the sync pipeline: the Coordinator enqueues one
// SyncStoreJob per active store per cycle, and the Ops service exposes the
// manual operations the internal HTTP surface calls.
//
// The coordinator never syncs anything itself. Its only job is claiming:
// a store row's sync claim is the mutual exclusion that guarantees at most
// one outstanding job per store no matter how many coordinator replicas or
// overlapping ticks fire.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"salespulse/internal/types"
)

// StoreClaimer is the store surface the coordinator needs.
type StoreClaimer interface {
	ListActive(ctx context.Context) ([]*types.Store, error)
	ClaimSyncCycle(ctx context.Context, storeID, cycleID string, claimTTL time.Duration) error
}

// JobEnqueuer sends sync job payloads to the sync queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, body []byte, delay time.Duration) error
}

// Coordinator enqueues sync work on a fixed cadence.
type Coordinator struct {
	stores   StoreClaimer
	queue    JobEnqueuer
	interval time.Duration
	claimTTL time.Duration
	logger   types.Logger
}

// NewCoordinator creates a Coordinator ticking at interval with the given
// claim TTL.
func NewCoordinator(stores StoreClaimer, queue JobEnqueuer, interval, claimTTL time.Duration, logger types.Logger) *Coordinator {
	return &Coordinator{
		stores:   stores,
		queue:    queue,
		interval: interval,
		claimTTL: claimTTL,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled. One cycle runs immediately on start so
// a fresh deployment does not wait a full interval for its first sync. A
// failed cycle is logged and the next tick tries again; the coordinator
// process never dies over an enumeration failure.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

// cycle enumerates active stores and enqueues a job for each claim won.
func (c *Coordinator) cycle(ctx context.Context) {
	cycleID := "cyc_" + uuid.New().String()
	log := c.logger.With("cycle_id", cycleID)

	stores, err := c.stores.ListActive(ctx)
	if err != nil {
		log.Error("failed to enumerate active stores, skipping cycle", "error", err.Error())
		return
	}

	enqueued := 0
	for _, store := range stores {
		ok, err := c.claimAndEnqueue(ctx, store.ID, cycleID, types.TriggerScheduled)
		if err != nil {
			log.Error("failed to schedule store sync",
				"store_id", store.ID,
				"error", err.Error(),
			)
			continue
		}
		if ok {
			enqueued++
		}
	}

	log.Info("sync cycle complete", "stores", len(stores), "enqueued", enqueued)
}

// claimAndEnqueue attempts the store's sync claim and, on winning it,
// enqueues the job. Returns false with nil error when the claim is already
// held, which is the normal case for a store whose previous job is still in
// flight.
func (c *Coordinator) claimAndEnqueue(ctx context.Context, storeID, cycleID string, trigger types.SyncTrigger) (bool, error) {
	if err := c.stores.ClaimSyncCycle(ctx, storeID, cycleID, c.claimTTL); err != nil {
		if types.HasCode(err, types.ErrCodeConflictSyncPending) {
			return false, nil
		}
		return false, err
	}

	job := types.SyncStoreJob{
		StoreID: storeID,
		CycleID: cycleID,
		Trigger: trigger,
		TraceID: types.GetTraceID(ctx),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return false, err
	}

	// An enqueue failure leaves the claim dangling until the TTL frees it.
	// That delays the store by one TTL at worst, which beats risking a
	// duplicate job.
	if err := c.queue.Enqueue(ctx, body, 0); err != nil {
		return false, err
	}
	return true, nil
}
