package slack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (l nopLogger) With(...any) types.Logger { return l }

type fakeProvider struct {
	lastUser string
	lastText string
	ts       string
	err      error
}

func (p *fakeProvider) PostDirectMessage(_ context.Context, userID, text string) (string, error) {
	p.lastUser = userID
	p.lastText = text
	return p.ts, p.err
}

func TestSender_Send_Accepted(t *testing.T) {
	p := &fakeProvider{ts: "1725000000.000100"}
	s := NewSender(p, nopLogger{})

	res, err := s.Send(context.Background(), core.Message{
		To:      "U024BE7LH",
		Subject: "Notable: order volume dip",
		Body:    "Orders fell below the recent trend.",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "1725000000.000100", res.ProviderMsgID)
	assert.Equal(t, "U024BE7LH", p.lastUser)
	assert.Equal(t, "*Notable: order volume dip*\nOrders fell below the recent trend.", p.lastText)
}

func TestSender_TestModePrefixesText(t *testing.T) {
	p := &fakeProvider{ts: "1725000000.000100"}
	s := NewSender(p, nopLogger{})

	_, err := s.Send(context.Background(), core.Message{
		To:       "U024BE7LH",
		Subject:  "Test notification",
		Body:     "This is a test.",
		TestMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "[test] *Test notification*\nThis is a test.", p.lastText)
}

func TestSender_UnknownUserBecomesRejection(t *testing.T) {
	p := &fakeProvider{err: types.NewAppError(types.ErrCodePermanentAddress, "user_not_found", nil)}
	s := NewSender(p, nopLogger{})

	res, err := s.Send(context.Background(), core.Message{To: "U0GONE"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "user_not_found", res.RejectReason)
}

func TestSender_TransientErrorPropagates(t *testing.T) {
	p := &fakeProvider{err: types.NewAppError(types.ErrCodeUpstreamRateLimited, "slack ratelimited", nil)}
	s := NewSender(p, nopLogger{})

	_, err := s.Send(context.Background(), core.Message{To: "U024BE7LH"})
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}
