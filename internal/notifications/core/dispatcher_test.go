package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salespulse/internal/types"
)

// nopLogger discards all log output.
type nopLogger struct{}

func (nopLogger) Info(string, ...any)         {}
func (nopLogger) Error(string, ...any)        {}
func (nopLogger) Warn(string, ...any)         {}
func (l nopLogger) With(...any) types.Logger  { return l }

// fakeStore is an in-memory DispatchStore tracking state transitions.
type fakeStore struct {
	attempts   map[string]int
	terminal   map[string]types.DispatchStatus
	retried    []string
	sent       map[string]string
	failed     map[string]string
	insight    *types.Insight
	preference *types.NotificationPreference
	prefErr    error
}

func newFakeStore(ins *types.Insight, p *types.NotificationPreference) *fakeStore {
	return &fakeStore{
		attempts: map[string]int{},
		terminal: map[string]types.DispatchStatus{},
		sent:     map[string]string{},
		failed:   map[string]string{},
		insight:  ins, preference: p,
	}
}

func (s *fakeStore) BeginAttempt(_ context.Context, id string) (int, bool, error) {
	if s.terminal[id].Terminal() {
		return 0, false, nil
	}
	s.attempts[id]++
	return s.attempts[id], true, nil
}

func (s *fakeStore) SetRetrying(_ context.Context, id, reason string) error {
	s.retried = append(s.retried, id)
	return nil
}

func (s *fakeStore) SetSent(_ context.Context, id, providerMsgID string) error {
	s.terminal[id] = types.DispatchSent
	s.sent[id] = providerMsgID
	return nil
}

func (s *fakeStore) SetFailed(_ context.Context, id, reason string) error {
	s.terminal[id] = types.DispatchFailed
	s.failed[id] = reason
	return nil
}

func (s *fakeStore) GetInsight(_ context.Context, id string) (*types.Insight, error) {
	if s.insight == nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundInsight, "insight not found", nil)
	}
	return s.insight, nil
}

func (s *fakeStore) GetPreference(_ context.Context, userID string) (*types.NotificationPreference, error) {
	if s.prefErr != nil {
		return nil, s.prefErr
	}
	return s.preference, nil
}

func (s *fakeStore) GetStoreName(_ context.Context, storeID string) (string, error) {
	return "Acme Outdoor", nil
}

// scriptedSender returns canned results per call.
type scriptedSender struct {
	channel types.ChannelType
	results []types.DeliveryResult
	errs    []error
	calls   int
}

func (s *scriptedSender) Channel() types.ChannelType { return s.channel }

func (s *scriptedSender) Send(_ context.Context, _ Message) (types.DeliveryResult, error) {
	i := s.calls
	s.calls++
	var res types.DeliveryResult
	var err error
	if i < len(s.results) {
		res = s.results[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return res, err
}

func job(channel types.ChannelType) types.DispatchJob {
	return types.DispatchJob{
		InsightID: "ins_store1_20260115_anomaly_revenue",
		Channel:   channel,
		UserID:    "u1",
	}
}

func TestDispatcher_Success(t *testing.T) {
	store := newFakeStore(anomalyInsight(0.40), pref("u1", 0.10))
	sender := &scriptedSender{
		channel: types.ChannelEmail,
		results: []types.DeliveryResult{{Accepted: true, ProviderMsgID: "sg_1"}},
	}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, outcome)

	id := types.DispatchID(job(types.ChannelEmail).InsightID, types.ChannelEmail, "u1")
	assert.Equal(t, "sg_1", store.sent[id])
}

func TestDispatcher_TerminalRecordSkipsProvider(t *testing.T) {
	store := newFakeStore(anomalyInsight(0.40), pref("u1", 0.10))
	id := types.DispatchID(job(types.ChannelEmail).InsightID, types.ChannelEmail, "u1")
	store.terminal[id] = types.DispatchSent

	sender := &scriptedSender{channel: types.ChannelEmail}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Zero(t, sender.calls, "a terminal record must never reach the provider")
}

func TestDispatcher_ProviderRejectionIsImmediatelyTerminal(t *testing.T) {
	p := pref("u1", 0.10)
	p.WhatsAppEnabled = true
	p.WhatsAppNumber = "+15550001111"
	store := newFakeStore(anomalyInsight(0.40), p)

	sender := &scriptedSender{
		channel: types.ChannelWhatsApp,
		results: []types.DeliveryResult{{Accepted: false, RejectReason: "recipient opted out"}},
	}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelWhatsApp))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	id := types.DispatchID(job(types.ChannelWhatsApp).InsightID, types.ChannelWhatsApp, "u1")
	assert.Equal(t, types.DispatchFailed, store.terminal[id])
	assert.Equal(t, "recipient opted out", store.failed[id])
	assert.Equal(t, 1, sender.calls, "rejection must not be retried")
}

func TestDispatcher_TransientErrorRetriesThenExhausts(t *testing.T) {
	store := newFakeStore(anomalyInsight(0.40), pref("u1", 0.10))
	transient := types.NewAppError(types.ErrCodeUpstreamUnavailable, "provider 503", nil)
	sender := &scriptedSender{
		channel: types.ChannelEmail,
		errs:    []error{transient, transient, transient},
	}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	ctx := context.Background()
	j := job(types.ChannelEmail)
	id := types.DispatchID(j.InsightID, j.Channel, j.UserID)

	// Attempts 1 and 2 are transient failures: record goes retrying, the
	// task stays on the queue.
	for i := 0; i < 2; i++ {
		outcome, err := d.Dispatch(ctx, j)
		require.NoError(t, err)
		assert.Equal(t, OutcomeRetry, outcome)
	}
	assert.Len(t, store.retried, 2)

	// Attempt 3 hits the cap and the record becomes terminally failed.
	outcome, err := d.Dispatch(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, types.DispatchFailed, store.terminal[id])

	// A late redelivery after the terminal transition is a clean duplicate.
	outcome, err = d.Dispatch(ctx, j)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 3, sender.calls)
}

func TestDispatcher_PermanentSenderErrorFailsWithoutRetry(t *testing.T) {
	store := newFakeStore(anomalyInsight(0.40), pref("u1", 0.10))
	sender := &scriptedSender{
		channel: types.ChannelEmail,
		errs:    []error{types.NewAppError(types.ErrCodePermanentAddress, "mailbox does not exist", nil)},
	}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, store.retried)
}

func TestDispatcher_ChannelDisabledAtDeliveryTime(t *testing.T) {
	p := pref("u1", 0.10)
	p.EmailEnabled = false
	store := newFakeStore(anomalyInsight(0.40), p)
	sender := &scriptedSender{channel: types.ChannelEmail}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Zero(t, sender.calls)
}

func TestDispatcher_StorageFailureLoadingPreferenceRetries(t *testing.T) {
	store := newFakeStore(anomalyInsight(0.40), pref("u1", 0.10))
	store.prefErr = types.NewAppError(types.ErrCodeInternalDB, "failed to get notification preference", nil)
	sender := &scriptedSender{channel: types.ChannelEmail}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelEmail))
	require.Error(t, err)
	assert.Equal(t, OutcomeRetry, outcome)
	assert.Empty(t, store.failed, "a storage blip must not end the dispatch terminally")
	assert.Zero(t, sender.calls)
}

func TestDispatcher_MissingPreferenceRowFailsTerminally(t *testing.T) {
	store := newFakeStore(anomalyInsight(0.40), nil)
	store.prefErr = types.NewAppError(types.ErrCodeNotFoundPreference, "notification preference not found", nil)
	sender := &scriptedSender{channel: types.ChannelEmail}
	d := NewDispatcher(store, []Sender{sender}, NoopMetrics{}, 3, nopLogger{})

	outcome, err := d.Dispatch(context.Background(), job(types.ChannelEmail))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.NotEmpty(t, store.failed)
	assert.Zero(t, sender.calls)
}
