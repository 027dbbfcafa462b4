package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

type fakeOpsStores struct {
	stores   map[string]*types.Store
	statuses []*types.StoreStatusView
}

func (f *fakeOpsStores) Get(_ context.Context, storeID string) (*types.Store, error) {
	store, ok := f.stores[storeID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundStore, "store not found", nil)
	}
	return store, nil
}

func (f *fakeOpsStores) ListStatuses(context.Context) ([]*types.StoreStatusView, error) {
	return f.statuses, nil
}

type fakeInsightStore struct {
	inserted []*types.Insight
	recent   []*types.Insight
}

func (f *fakeInsightStore) InsertIfAbsent(_ context.Context, ins *types.Insight) (bool, error) {
	f.inserted = append(f.inserted, ins)
	return true, nil
}

func (f *fakeInsightStore) ListRecentByStore(_ context.Context, storeID string, limit int) ([]*types.Insight, error) {
	return f.recent, nil
}

type fakePrefStore struct {
	pref *types.NotificationPreference
}

func (f *fakePrefStore) GetByUser(_ context.Context, userID string) (*types.NotificationPreference, error) {
	if f.pref == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundPreference, "no preference for user", nil)
	}
	return f.pref, nil
}

type fakeDispatchStore struct {
	counts map[types.DispatchStatus]int64
}

func (f *fakeDispatchStore) CountByStatus(context.Context) (map[types.DispatchStatus]int64, error) {
	return f.counts, nil
}

type fakePublisher struct {
	insightID  string
	deliveries []core.Delivery
	testMode   bool
}

func (f *fakePublisher) Publish(_ context.Context, insightID string, deliveries []core.Delivery, testMode bool) (int, error) {
	f.insightID = insightID
	f.deliveries = deliveries
	f.testMode = testMode
	return len(deliveries), nil
}

func newTestOps(stores *fakeOpsStores, claims *fakeClaimStore, q *fakeEnqueuer, insights *fakeInsightStore, prefs *fakePrefStore, pub *fakePublisher) *Ops {
	coord := NewCoordinator(claims, q, time.Hour, 2*time.Hour, nopLogger{})
	return NewOps(coord, stores, insights, prefs, &fakeDispatchStore{}, pub, nopLogger{})
}

func TestDispatchCounts(t *testing.T) {
	coord := NewCoordinator(&fakeClaimStore{}, &fakeEnqueuer{}, time.Hour, 2*time.Hour, nopLogger{})
	dispatches := &fakeDispatchStore{counts: map[types.DispatchStatus]int64{
		types.DispatchSent:   12,
		types.DispatchFailed: 1,
	}}
	ops := NewOps(coord, &fakeOpsStores{}, &fakeInsightStore{}, &fakePrefStore{}, dispatches, &fakePublisher{}, nopLogger{})

	counts, err := ops.DispatchCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), counts[types.DispatchSent])
	assert.Equal(t, int64(1), counts[types.DispatchFailed])
}

func TestTriggerSync_EnqueuesManualJob(t *testing.T) {
	stores := &fakeOpsStores{stores: map[string]*types.Store{
		"store_1": {ID: "store_1", Status: types.StoreStatusActive},
	}}
	q := &fakeEnqueuer{}
	ops := newTestOps(stores, &fakeClaimStore{}, q, &fakeInsightStore{}, &fakePrefStore{}, &fakePublisher{})

	cycleID, err := ops.TriggerSync(context.Background(), "store_1")
	require.NoError(t, err)
	assert.Contains(t, cycleID, "cyc_")

	require.Len(t, q.bodies, 1)
	var job types.SyncStoreJob
	require.NoError(t, json.Unmarshal(q.bodies[0], &job))
	assert.Equal(t, "store_1", job.StoreID)
	assert.Equal(t, types.TriggerManual, job.Trigger)
	assert.Equal(t, cycleID, job.CycleID)
}

func TestTriggerSync_ConflictWhenSyncPending(t *testing.T) {
	stores := &fakeOpsStores{stores: map[string]*types.Store{
		"store_1": {ID: "store_1", Status: types.StoreStatusActive},
	}}
	claims := &fakeClaimStore{conflicts: map[string]bool{"store_1": true}}
	ops := newTestOps(stores, claims, &fakeEnqueuer{}, &fakeInsightStore{}, &fakePrefStore{}, &fakePublisher{})

	_, err := ops.TriggerSync(context.Background(), "store_1")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictSyncPending))
}

func TestTriggerSync_InactiveStore(t *testing.T) {
	stores := &fakeOpsStores{stores: map[string]*types.Store{
		"store_1": {ID: "store_1", Status: types.StoreStatusError},
	}}
	ops := newTestOps(stores, &fakeClaimStore{}, &fakeEnqueuer{}, &fakeInsightStore{}, &fakePrefStore{}, &fakePublisher{})

	_, err := ops.TriggerSync(context.Background(), "store_1")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeConflictStoreNotActive),
		"an inactive store is distinguishable from a pending sync")
}

func TestTriggerSync_UnknownStore(t *testing.T) {
	ops := newTestOps(&fakeOpsStores{stores: map[string]*types.Store{}}, &fakeClaimStore{}, &fakeEnqueuer{}, &fakeInsightStore{}, &fakePrefStore{}, &fakePublisher{})

	_, err := ops.TriggerSync(context.Background(), "store_gone")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundStore))
}

func TestSendTestNotification_AllEnabledChannels(t *testing.T) {
	insights := &fakeInsightStore{}
	pub := &fakePublisher{}
	prefs := &fakePrefStore{pref: &types.NotificationPreference{
		UserID:       "user_1",
		EmailEnabled: true,
		Email:        "owner@example.com",
		SlackEnabled: true,
		SlackUserID:  "U024BE7LH",
	}}
	ops := newTestOps(&fakeOpsStores{}, &fakeClaimStore{}, &fakeEnqueuer{}, insights, prefs, pub)

	insightID, enqueued, err := ops.SendTestNotification(context.Background(), "user_1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, enqueued)
	assert.Contains(t, insightID, "note_")

	require.Len(t, insights.inserted, 1)
	note := insights.inserted[0]
	assert.Equal(t, types.InsightNote, note.Type)
	assert.Equal(t, types.SeverityLow, note.Severity)
	assert.NotEmpty(t, note.Narrative)

	assert.True(t, pub.testMode)
	assert.Equal(t, insightID, pub.insightID)
	assert.ElementsMatch(t, []core.Delivery{
		{UserID: "user_1", Channel: types.ChannelEmail},
		{UserID: "user_1", Channel: types.ChannelSlack},
	}, pub.deliveries)
}

func TestSendTestNotification_SingleChannel(t *testing.T) {
	pub := &fakePublisher{}
	prefs := &fakePrefStore{pref: &types.NotificationPreference{
		UserID:       "user_1",
		EmailEnabled: true,
		Email:        "owner@example.com",
		SlackEnabled: true,
		SlackUserID:  "U024BE7LH",
	}}
	ops := newTestOps(&fakeOpsStores{}, &fakeClaimStore{}, &fakeEnqueuer{}, &fakeInsightStore{}, prefs, pub)

	_, enqueued, err := ops.SendTestNotification(context.Background(), "user_1", types.ChannelSlack)
	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
	assert.Equal(t, []core.Delivery{{UserID: "user_1", Channel: types.ChannelSlack}}, pub.deliveries)
}

func TestSendTestNotification_UnknownChannel(t *testing.T) {
	ops := newTestOps(&fakeOpsStores{}, &fakeClaimStore{}, &fakeEnqueuer{}, &fakeInsightStore{}, &fakePrefStore{}, &fakePublisher{})

	_, _, err := ops.SendTestNotification(context.Background(), "user_1", "pager")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationBadChannel))
}

func TestSendTestNotification_NothingEnabled(t *testing.T) {
	prefs := &fakePrefStore{pref: &types.NotificationPreference{UserID: "user_1"}}
	ops := newTestOps(&fakeOpsStores{}, &fakeClaimStore{}, &fakeEnqueuer{}, &fakeInsightStore{}, prefs, &fakePublisher{})

	_, _, err := ops.SendTestNotification(context.Background(), "user_1", "")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationBadChannel))
}

func TestRecentInsights_UnknownStore(t *testing.T) {
	ops := newTestOps(&fakeOpsStores{stores: map[string]*types.Store{}}, &fakeClaimStore{}, &fakeEnqueuer{}, &fakeInsightStore{}, &fakePrefStore{}, &fakePublisher{})

	_, err := ops.RecentInsights(context.Background(), "store_gone", 10)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundStore))
}
