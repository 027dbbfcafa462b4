package external

import (
	"context"
	"fmt"
	"sync/atomic"

	"salespulse/internal/types"
)

// Stub providers for local development: they log the would-be call and
// fabricate a provider message ID. Wired in the worker mains when
// APP_ENV=local or the channel's credentials are unset.

// StubProvider satisfies the send surface of every channel client.
type StubProvider struct {
	name    string
	logger  types.Logger
	counter atomic.Int64
}

// NewStubProvider creates a named stub.
func NewStubProvider(name string, logger types.Logger) *StubProvider {
	return &StubProvider{name: name, logger: logger}
}

func (s *StubProvider) send(to, body string) string {
	id := fmt.Sprintf("stub-%s-%d", s.name, s.counter.Add(1))
	s.logger.Info("stub delivery",
		"provider", s.name,
		"to", to,
		"provider_message_id", id,
		"body_len", len(body),
	)
	return id
}

// Send matches SendGridClient.Send.
func (s *StubProvider) Send(_ context.Context, to, subject, body string) (string, error) {
	return s.send(to, subject+"\n"+body), nil
}

// PostDirectMessage matches SlackClient.PostDirectMessage.
func (s *StubProvider) PostDirectMessage(_ context.Context, userID, text string) (string, error) {
	return s.send(userID, text), nil
}

// SendWhatsApp matches TwilioClient.SendWhatsApp.
func (s *StubProvider) SendWhatsApp(_ context.Context, toNumber, body string) (string, error) {
	return s.send(toNumber, body), nil
}

// StubNarrator satisfies the insight Narrator interface without an API call.
type StubNarrator struct{}

// Narrate echoes the insight title as the narrative.
func (StubNarrator) Narrate(_ context.Context, ins *types.Insight, _ *types.SalesSnapshot) (string, error) {
	return ins.Title + ".", nil
}
