package syncer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salespulse/internal/queue"
	"salespulse/internal/types"
)

type fakeQueue struct {
	acked   []string
	retried []string
	delays  []time.Duration
}

func (q *fakeQueue) Enqueue(context.Context, []byte, time.Duration) error { return nil }

func (q *fakeQueue) Receive(context.Context, int, time.Duration) ([]queue.Task, error) {
	return nil, nil
}

func (q *fakeQueue) Ack(_ context.Context, task queue.Task) error {
	q.acked = append(q.acked, task.ID)
	return nil
}

func (q *fakeQueue) Retry(_ context.Context, task queue.Task, delay time.Duration) error {
	q.retried = append(q.retried, task.ID)
	q.delays = append(q.delays, delay)
	return nil
}

func syncTask(t *testing.T, job types.SyncStoreJob, dequeueCount int) queue.Task {
	t.Helper()
	body, err := json.Marshal(job)
	require.NoError(t, err)
	return queue.Task{ID: "task_1", Body: body, DequeueCount: dequeueCount}
}

func newTestWorker(q *fakeQueue, s *Syncer) *Worker {
	return NewWorker(q, s, queue.BackoffPolicy{Base: time.Second, Max: time.Minute, Factor: 2}, 5, 1, time.Second, nopLogger{})
}

func TestWorker_AcksMalformedPayload(t *testing.T) {
	q := &fakeQueue{}
	w := newTestWorker(q, nil)

	w.handle(context.Background(), queue.Task{ID: "task_1", Body: []byte("{not json"), DequeueCount: 1})

	assert.Equal(t, []string{"task_1"}, q.acked)
	assert.Empty(t, q.retried)
}

func TestWorker_ContainsPoisonJob(t *testing.T) {
	stores := newFakeStoreStore(testStore())
	s := newTestSyncer(stores, &fakeSnapshotStore{}, &fakeInsightStore{}, &fakePreferenceStore{}, &fakePlatform{}, &fakePublisher{})
	q := &fakeQueue{}
	w := newTestWorker(q, s)

	task := syncTask(t, types.SyncStoreJob{StoreID: "store_1", CycleID: "cyc_1"}, 6)
	w.handle(context.Background(), task)

	assert.Equal(t, []string{"task_1"}, q.acked)
	assert.Empty(t, q.retried)
	assert.Equal(t, types.StoreStatusError, stores.statuses["store_1"])
	assert.Equal(t, 1, stores.released["store_1"])
}

func TestWorker_RetriesTransientFailure(t *testing.T) {
	stores := newFakeStoreStore(testStore())
	platform := &fakePlatform{err: types.NewAppError(types.ErrCodeUpstreamUnavailable, "shopify 503", nil)}
	s := newTestSyncer(stores, &fakeSnapshotStore{}, &fakeInsightStore{}, &fakePreferenceStore{}, platform, &fakePublisher{})
	q := &fakeQueue{}
	w := newTestWorker(q, s)

	task := syncTask(t, types.SyncStoreJob{StoreID: "store_1", CycleID: "cyc_1"}, 2)
	w.handle(context.Background(), task)

	assert.Empty(t, q.acked)
	assert.Equal(t, []string{"task_1"}, q.retried)
	require.Len(t, q.delays, 1)
	assert.Greater(t, q.delays[0], time.Duration(0))
}

func TestWorker_AcksSuccessfulSync(t *testing.T) {
	bucket := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	stores := newFakeStoreStore(testStore())
	snaps := &fakeSnapshotStore{window: spikeWindow("store_1", bucket)}
	s := newTestSyncer(stores, snaps, &fakeInsightStore{}, &fakePreferenceStore{}, &fakePlatform{snap: &types.SalesSnapshot{Revenue: 400}}, &fakePublisher{})
	q := &fakeQueue{}
	w := newTestWorker(q, s)

	task := syncTask(t, types.SyncStoreJob{StoreID: "store_1", CycleID: "cyc_1"}, 1)
	w.handle(context.Background(), task)

	assert.Equal(t, []string{"task_1"}, q.acked)
	assert.Empty(t, q.retried)
}
