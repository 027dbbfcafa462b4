package email

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
	lastTo      string
	lastSubject string
	msgID       string
	err         error
}

func (p *fakeProvider) Send(_ context.Context, to, subject, _ string) (string, error) {
	p.lastTo = to
	p.lastSubject = subject
	return p.msgID, p.err
}

func TestSender_Send_Accepted(t *testing.T) {
	p := &fakeProvider{msgID: "sg_1"}
	s := NewSender(p, nopLogger{})

	res, err := s.Send(context.Background(), core.Message{
		To:      "owner@example.com",
		Subject: "Urgent: revenue spike",
		Body:    "Revenue jumped 40%.",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "sg_1", res.ProviderMsgID)
	assert.Equal(t, "owner@example.com", p.lastTo)
}

func TestSender_TestModeTagsSubject(t *testing.T) {
	p := &fakeProvider{msgID: "sg_1"}
	s := NewSender(p, nopLogger{})

	_, err := s.Send(context.Background(), core.Message{
		To:       "owner@example.com",
		Subject:  "Test notification",
		TestMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "[test] Test notification", p.lastSubject)
}

func TestSender_SuppressionBecomesRejection(t *testing.T) {
	p := &fakeProvider{err: types.NewAppError(types.ErrCodePermanentRejected, "recipient suppressed", nil)}
	s := NewSender(p, nopLogger{})

	res, err := s.Send(context.Background(), core.Message{To: "bounced@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, "recipient suppressed", res.RejectReason)
}

func TestSender_TransientErrorPropagates(t *testing.T) {
	p := &fakeProvider{err: types.NewAppError(types.ErrCodeUpstreamUnavailable, "sendgrid 503", nil)}
	s := NewSender(p, nopLogger{})

	_, err := s.Send(context.Background(), core.Message{To: "owner@example.com"})
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "j***@gmail.com", RedactEmail("john@gmail.com"))
	assert.Equal(t, "***", RedactEmail("not-an-email"))
	assert.Equal(t, "***@x.com", RedactEmail("@x.com"))
	assert.Equal(t, "", RedactEmail(""))
}
