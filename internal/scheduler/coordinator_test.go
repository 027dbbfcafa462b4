package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salespulse/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (l nopLogger) With(...any) types.Logger { return l }

type fakeClaimStore struct {
	active    []*types.Store
	listErr   error
	conflicts map[string]bool // storeID -> claim already held
	claimErr  error
	claims    []string
}

func (f *fakeClaimStore) ListActive(context.Context) ([]*types.Store, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.active, nil
}

func (f *fakeClaimStore) ClaimSyncCycle(_ context.Context, storeID, cycleID string, _ time.Duration) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	if f.conflicts[storeID] {
		return types.NewAppError(types.ErrCodeConflictSyncPending, "sync already pending", nil)
	}
	f.claims = append(f.claims, storeID)
	return nil
}

type fakeEnqueuer struct {
	bodies [][]byte
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, body []byte, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.bodies = append(f.bodies, body)
	return nil
}

func activeStores(ids ...string) []*types.Store {
	var out []*types.Store
	for _, id := range ids {
		out = append(out, &types.Store{ID: id, Status: types.StoreStatusActive})
	}
	return out
}

func TestCycle_EnqueuesJobPerClaimedStore(t *testing.T) {
	stores := &fakeClaimStore{active: activeStores("store_1", "store_2")}
	q := &fakeEnqueuer{}
	c := NewCoordinator(stores, q, time.Hour, 2*time.Hour, nopLogger{})

	c.cycle(context.Background())

	require.Len(t, q.bodies, 2)
	var first, second types.SyncStoreJob
	require.NoError(t, json.Unmarshal(q.bodies[0], &first))
	require.NoError(t, json.Unmarshal(q.bodies[1], &second))

	assert.Equal(t, "store_1", first.StoreID)
	assert.Equal(t, "store_2", second.StoreID)
	assert.Equal(t, types.TriggerScheduled, first.Trigger)

	// Both jobs belong to the same cycle.
	assert.Equal(t, first.CycleID, second.CycleID)
	assert.Contains(t, first.CycleID, "cyc_")
}

func TestCycle_SkipsStoresWithPendingClaim(t *testing.T) {
	stores := &fakeClaimStore{
		active:    activeStores("store_1", "store_2"),
		conflicts: map[string]bool{"store_1": true},
	}
	q := &fakeEnqueuer{}
	c := NewCoordinator(stores, q, time.Hour, 2*time.Hour, nopLogger{})

	c.cycle(context.Background())

	require.Len(t, q.bodies, 1)
	var job types.SyncStoreJob
	require.NoError(t, json.Unmarshal(q.bodies[0], &job))
	assert.Equal(t, "store_2", job.StoreID)
}

func TestCycle_EnumerationFailureEnqueuesNothing(t *testing.T) {
	stores := &fakeClaimStore{listErr: errors.New("connection refused")}
	q := &fakeEnqueuer{}
	c := NewCoordinator(stores, q, time.Hour, 2*time.Hour, nopLogger{})

	c.cycle(context.Background())

	assert.Empty(t, q.bodies)
}

func TestCycle_EnqueueFailureDoesNotStopTheCycle(t *testing.T) {
	stores := &fakeClaimStore{active: activeStores("store_1", "store_2")}
	q := &fakeEnqueuer{err: errors.New("queue unavailable")}
	c := NewCoordinator(stores, q, time.Hour, 2*time.Hour, nopLogger{})

	c.cycle(context.Background())

	// Every store was still attempted; claims dangle until the TTL.
	assert.Equal(t, []string{"store_1", "store_2"}, stores.claims)
	assert.Empty(t, q.bodies)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	stores := &fakeClaimStore{}
	c := NewCoordinator(stores, &fakeEnqueuer{}, 50*time.Millisecond, time.Hour, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not shut down")
	}
}
