// Package queue provides the durable, at-least-once task queue that decouples
// the coordinator from the worker pools. Two implementations exist: an SQS
// backed one for real deployments (visibility timeout acts as the lease,
// DelaySeconds as the backoff) and an in-memory one for tests and local mode.
//
// A task received but not acknowledged within its lease window is redelivered
// to another worker. That redelivery is the sole crash-recovery mechanism, so
// every consumer step before Ack must be safe to repeat.
package queue

import (
	"context"
	"time"
)

// Task is a leased queue envelope handed to a worker. The worker must call
// exactly one of Ack (done, including poison containment) or Retry (transient
// failure, redeliver after a delay) before the lease expires; doing neither
// leaves the task to reappear after lease expiry.
type Task struct {
	// ID is the queue-side message identity, for logging only.
	ID string

	// Body is the JSON-encoded job payload (SyncStoreJob or DispatchJob).
	Body []byte

	// DequeueCount is how many times this task has been delivered, including
	// this delivery. Poison containment keys off it.
	DequeueCount int

	// EnqueuedAt is when the task was first sent, for queue-lag telemetry.
	EnqueuedAt time.Time

	// receipt is the implementation-specific lease handle.
	receipt string
}

// TaskQueue is the lease-based work queue consumed by the worker pools and
// fed by the coordinator and the dispatch fan-out.
type TaskQueue interface {
	// Enqueue sends a payload, visible after the given delay.
	Enqueue(ctx context.Context, body []byte, delay time.Duration) error

	// Receive long-polls for up to max tasks, waiting at most wait. Each
	// returned task is leased for the queue's configured lease duration.
	// An empty slice with nil error means the poll timed out quietly.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Task, error)

	// Ack removes a leased task permanently.
	Ack(ctx context.Context, task Task) error

	// Retry releases a leased task for redelivery after the given delay,
	// used for transient failures with backoff.
	Retry(ctx context.Context, task Task, delay time.Duration) error
}
