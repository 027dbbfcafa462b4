package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueue_LeaseAndRedelivery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := NewMemoryQueue(5 * time.Minute)
	q.SetNowFunc(func() time.Time { return now })

	if err := q.Enqueue(ctx, []byte("job"), 0); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// First receive leases the task.
	tasks, err := q.Receive(ctx, 10, 0)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("Receive: %v, %d tasks", err, len(tasks))
	}
	if tasks[0].DequeueCount != 1 {
		t.Errorf("DequeueCount = %d, want 1", tasks[0].DequeueCount)
	}

	// While leased, the task is invisible.
	tasks2, _ := q.Receive(ctx, 10, 0)
	if len(tasks2) != 0 {
		t.Fatalf("leased task should be invisible, got %d", len(tasks2))
	}

	// After lease expiry (crashed worker) it is redelivered with a bumped count.
	now = now.Add(6 * time.Minute)
	tasks3, _ := q.Receive(ctx, 10, 0)
	if len(tasks3) != 1 {
		t.Fatalf("expected redelivery after lease expiry, got %d", len(tasks3))
	}
	if tasks3[0].DequeueCount != 2 {
		t.Errorf("redelivered DequeueCount = %d, want 2", tasks3[0].DequeueCount)
	}

	// Ack ends redelivery for good.
	if err := q.Ack(ctx, tasks3[0]); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	now = now.Add(time.Hour)
	tasks4, _ := q.Receive(ctx, 10, 0)
	if len(tasks4) != 0 {
		t.Fatalf("acked task must not reappear, got %d", len(tasks4))
	}
	if q.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", q.Depth())
	}
}

func TestMemoryQueue_RetryDelaysRedelivery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := NewMemoryQueue(5 * time.Minute)
	q.SetNowFunc(func() time.Time { return now })

	_ = q.Enqueue(ctx, []byte("job"), 0)
	tasks, _ := q.Receive(ctx, 1, 0)
	if len(tasks) != 1 {
		t.Fatal("expected one task")
	}

	if err := q.Retry(ctx, tasks[0], 2*time.Minute); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	// Not yet visible.
	now = now.Add(time.Minute)
	if got, _ := q.Receive(ctx, 1, 0); len(got) != 0 {
		t.Fatal("task visible before retry delay elapsed")
	}

	// Visible after the delay.
	now = now.Add(2 * time.Minute)
	got, _ := q.Receive(ctx, 1, 0)
	if len(got) != 1 {
		t.Fatal("task not redelivered after retry delay")
	}
	if got[0].DequeueCount != 2 {
		t.Errorf("DequeueCount = %d, want 2", got[0].DequeueCount)
	}
}

func TestMemoryQueue_EnqueueDelay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	q := NewMemoryQueue(time.Minute)
	q.SetNowFunc(func() time.Time { return now })

	_ = q.Enqueue(ctx, []byte("delayed"), 30*time.Second)
	if got, _ := q.Receive(ctx, 1, 0); len(got) != 0 {
		t.Fatal("delayed task visible immediately")
	}
	now = now.Add(31 * time.Second)
	if got, _ := q.Receive(ctx, 1, 0); len(got) != 1 {
		t.Fatal("delayed task not visible after delay")
	}
}
