package core

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"salespulse/internal/queue"
	"salespulse/internal/types"
)

// Worker is the long-running dispatch consumer: a fixed pool of goroutines
// long-polling the dispatch queue and executing jobs through the Dispatcher.
type Worker struct {
	queue       queue.TaskQueue
	dispatcher  *Dispatcher
	backoff     queue.BackoffPolicy
	metrics     Metrics
	workers     int
	receiveWait time.Duration
	logger      types.Logger
}

// NewWorker creates a dispatch worker pool of the given size.
func NewWorker(q queue.TaskQueue, d *Dispatcher, backoff queue.BackoffPolicy, metrics Metrics, workers int, receiveWait time.Duration, logger types.Logger) *Worker {
	return &Worker{
		queue:       q,
		dispatcher:  d,
		backoff:     backoff,
		metrics:     metrics,
		workers:     workers,
		receiveWait: receiveWait,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled, consuming dispatch jobs. In-flight
// tasks finish before Run returns; unfinished leases lapse back to the
// queue.
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
			w.logger.Error("dispatch receive failed", "error", err.Error())
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
	if !task.EnqueuedAt.IsZero() {
		w.metrics.RecordQueueLag(ctx, time.Since(task.EnqueuedAt))
	}

	var job types.DispatchJob
	if err := json.Unmarshal(task.Body, &job); err != nil {
		// Malformed payloads can never succeed; drop them.
		w.logger.Error("dropping malformed dispatch job",
			"task_id", task.ID,
			"error", err.Error(),
		)
		w.ack(ctx, task)
		return
	}

	if job.TraceID != "" {
		ctx = types.WithTraceID(ctx, job.TraceID)
	}

	outcome, err := w.dispatcher.Dispatch(ctx, job)
	if err != nil {
		w.logger.Error("dispatch attempt errored",
			"task_id", task.ID,
			"outcome", string(outcome),
			"error", err.Error(),
		)
	}

	if outcome == OutcomeRetry {
		delay := w.backoff.Delay(task.DequeueCount)
		if retryErr := w.queue.Retry(ctx, task, delay); retryErr != nil {
			w.logger.Error("failed to schedule dispatch retry",
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
		// The lease will lapse and the task redelivers; the terminal-state
		// gate makes that redelivery harmless.
		w.logger.Error("failed to ack dispatch task",
			"task_id", task.ID,
			"error", err.Error(),
		)
	}
}
