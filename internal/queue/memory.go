package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryQueue is an in-process TaskQueue with real lease semantics: received
// tasks become invisible for the lease duration, unacknowledged tasks are
// redelivered with an incremented dequeue count, and Retry reschedules
// visibility. Used by tests and local mode.
type MemoryQueue struct {
	mu     sync.Mutex
	lease  time.Duration
	nextID int
	items  []*memoryItem
	now    func() time.Time
}

type memoryItem struct {
	id           string
	body         []byte
	dequeueCount int
	enqueuedAt   time.Time
	visibleAt    time.Time
	leased       bool
	done         bool
}

// NewMemoryQueue creates a MemoryQueue with the given lease duration.
func NewMemoryQueue(lease time.Duration) *MemoryQueue {
	return &MemoryQueue{
		lease: lease,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock, letting tests advance lease expiry
// without sleeping.
func (q *MemoryQueue) SetNowFunc(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue adds a payload, visible after delay.
func (q *MemoryQueue) Enqueue(_ context.Context, body []byte, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	now := q.now()
	q.items = append(q.items, &memoryItem{
		id:         "mem-" + strconv.Itoa(q.nextID),
		body:       append([]byte(nil), body...),
		enqueuedAt: now,
		visibleAt:  now.Add(delay),
	})
	return nil
}

// Receive returns up to max currently-visible tasks. It does not block on
// wait; an empty result models a quiet poll.
func (q *MemoryQueue) Receive(_ context.Context, max int, _ time.Duration) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var tasks []Task
	for _, it := range q.items {
		if len(tasks) >= max {
			break
		}
		if it.done || now.Before(it.visibleAt) {
			continue
		}
		// A previously leased item reappearing here is a lease expiry; the
		// redelivery shows up with a bumped dequeue count.
		it.leased = true
		it.dequeueCount++
		it.visibleAt = now.Add(q.lease)
		tasks = append(tasks, Task{
			ID:           it.id,
			Body:         append([]byte(nil), it.body...),
			DequeueCount: it.dequeueCount,
			EnqueuedAt:   it.enqueuedAt,
			receipt:      it.id,
		})
	}
	return tasks, nil
}

// Ack permanently removes the task.
func (q *MemoryQueue) Ack(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.id == task.receipt {
			it.done = true
			return nil
		}
	}
	return nil
}

// Retry makes the task visible again after delay.
func (q *MemoryQueue) Retry(_ context.Context, task Task, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.items {
		if it.id == task.receipt {
			it.leased = false
			it.visibleAt = q.now().Add(delay)
			return nil
		}
	}
	return nil
}

// Depth returns the number of undelivered or unacknowledged items, for
// assertions in tests.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, it := range q.items {
		if !it.done {
			n++
		}
	}
	return n
}
