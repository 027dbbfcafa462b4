package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"salespulse/internal/queue"
	"salespulse/internal/types"
)

// Worker is the long-running sync consumer: a fixed pool of goroutines
// long-polling the sync queue and executing jobs through the Syncer.
type Worker struct {
	queue       queue.TaskQueue
	syncer      *Syncer
	backoff     queue.BackoffPolicy
	maxAttempts int
	workers     int
	receiveWait time.Duration
	logger      types.Logger
}

// NewWorker creates a sync worker pool of the given size. maxAttempts caps
// queue deliveries per job before poison containment kicks in.
func NewWorker(q queue.TaskQueue, s *Syncer, backoff queue.BackoffPolicy, maxAttempts, workers int, receiveWait time.Duration, logger types.Logger) *Worker {
	return &Worker{
		queue:       q,
		syncer:      s,
		backoff:     backoff,
		maxAttempts: maxAttempts,
		workers:     workers,
		receiveWait: receiveWait,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled, consuming sync jobs. In-flight tasks
// finish before Run returns; unfinished leases lapse back to the queue.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		tasks, err := w.queue.Receive(ctx, 1, w.receiveWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("sync receive failed", "error", err.Error())
			// Avoid a hot error loop when the queue is unreachable.
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, task := range tasks {
			w.handle(ctx, task)
		}
	}
}

func (w *Worker) handle(ctx context.Context, task queue.Task) {
	var job types.SyncStoreJob
	if err := json.Unmarshal(task.Body, &job); err != nil {
		// Malformed payloads can never succeed; drop them.
		w.logger.Error("dropping malformed sync job",
			"task_id", task.ID,
			"error", err.Error(),
		)
		w.ack(ctx, task)
		return
	}

	if job.TraceID != "" {
		ctx = types.WithTraceID(ctx, job.TraceID)
	}

	// Poison containment. A job that keeps coming back has a failure no
	// retry will fix; mark the store so an operator sees it and drop the
	// job instead of cycling forever.
	if task.DequeueCount > w.maxAttempts {
		reason := fmt.Sprintf("sync abandoned after %d deliveries", task.DequeueCount)
		w.logger.Error("containing poison sync job",
			"task_id", task.ID,
			"store_id", job.StoreID,
			"dequeue_count", task.DequeueCount,
		)
		if err := w.syncer.Abandon(ctx, job.StoreID, reason); err != nil {
			w.logger.Error("failed to mark poisoned store",
				"store_id", job.StoreID,
				"error", err.Error(),
			)
		}
		w.ack(ctx, task)
		return
	}

	outcome, err := w.syncer.Sync(ctx, job)
	if err != nil {
		w.logger.Error("sync attempt errored",
			"task_id", task.ID,
			"store_id", job.StoreID,
			"outcome", string(outcome),
			"error", err.Error(),
		)
	}

	if outcome == OutcomeRetry {
		delay := w.backoff.Delay(task.DequeueCount)
		if retryErr := w.queue.Retry(ctx, task, delay); retryErr != nil {
			w.logger.Error("failed to schedule sync retry",
				"task_id", task.ID,
				"error", retryErr.Error(),
			)
		}
		return
	}

	w.ack(ctx, task)
}

func (w *Worker) ack(ctx context.Context, task queue.Task) {
	if err := w.queue.Ack(ctx, task); err != nil {
		// The lease lapses and the task redelivers; idempotent sub-steps
		// make that redelivery harmless.
		w.logger.Error("failed to ack sync task",
			"task_id", task.ID,
			"error", err.Error(),
		)
	}
}
