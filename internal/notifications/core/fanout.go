package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salespulse/internal/types"
)

// DispatchCreator is the persistence slice fan-out needs: the idempotent
// dispatch record insert, plus the read used to re-offer records whose job
// never reached the queue.
type DispatchCreator interface {
	InsertIfNotExists(ctx context.Context, insightID string, channel types.ChannelType, userID string) (bool, error)
	Get(ctx context.Context, dispatchID string) (*types.DispatchRecord, error)
}

// JobEnqueuer is the queue slice fan-out needs.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, body []byte, delay time.Duration) error
}

// FanOut turns resolved deliveries into dispatch records and queue jobs.
// The record insert precedes the enqueue, so every in-flight DispatchJob has
// a backing record. A record without a job (the enqueue failed after the
// insert) stays pending, and a replayed Publish for the same triple
// enqueues the missing job.
type FanOut struct {
	records DispatchCreator
	queue   JobEnqueuer
	logger  types.Logger
}

// NewFanOut creates a FanOut over the given record store and dispatch queue.
func NewFanOut(records DispatchCreator, queue JobEnqueuer, logger types.Logger) *FanOut {
	return &FanOut{records: records, queue: queue, logger: logger}
}

// Publish creates a dispatch record and enqueues a DispatchJob for each
// delivery. A triple whose record already progressed past pending is
// skipped silently: a worker owns it. A still-pending existing record gets
// its job enqueued again, covering the crash window between record insert
// and enqueue. Returns the number of jobs enqueued.
func (f *FanOut) Publish(ctx context.Context, insightID string, deliveries []Delivery, testMode bool) (int, error) {
	traceID := types.GetTraceID(ctx)

	enqueued := 0
	for _, del := range deliveries {
		created, err := f.records.InsertIfNotExists(ctx, insightID, del.Channel, del.UserID)
		if err != nil {
			return enqueued, fmt.Errorf("create dispatch record: %w", err)
		}
		if !created {
			rec, err := f.records.Get(ctx, types.DispatchID(insightID, del.Channel, del.UserID))
			if err != nil {
				return enqueued, fmt.Errorf("load dispatch record: %w", err)
			}
			// A record still in pending has never been claimed by a
			// worker; the first receive moves it to sending. Anything
			// past pending already has a live or finished queue copy.
			if rec.Status != types.DispatchPending {
				continue
			}
		}

		job := types.DispatchJob{
			InsightID: insightID,
			Channel:   del.Channel,
			UserID:    del.UserID,
			TestMode:  testMode,
			TraceID:   traceID,
		}
		body, err := json.Marshal(job)
		if err != nil {
			return enqueued, fmt.Errorf("marshal dispatch job: %w", err)
		}
		if err := f.queue.Enqueue(ctx, body, 0); err != nil {
			return enqueued, fmt.Errorf("enqueue dispatch job: %w", err)
		}

		enqueued++
		f.logger.Info("dispatch job enqueued",
			"insight_id", insightID,
			"channel", string(del.Channel),
			"user_id", del.UserID,
		)
	}
	return enqueued, nil
}
