// Package slack implements the Slack direct-message delivery channel.
package slack

import (
	"context"

	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

// Provider is the messaging surface the sender needs. Implemented by
// external.SlackClient and the local stub.
type Provider interface {
	PostDirectMessage(ctx context.Context, userID, text string) (ts string, err error)
}

// Compile-time assertion that Sender implements core.Sender.
var _ core.Sender = (*Sender)(nil)

// Sender delivers rendered messages as Slack DMs to the user's Slack ID.
type Sender struct {
	provider Provider
	logger   types.Logger
}

// NewSender creates a Slack Sender over the given provider.
func NewSender(provider Provider, logger types.Logger) *Sender {
	return &Sender{provider: provider, logger: logger}
}

// Channel returns the slack channel identifier.
func (s *Sender) Channel() types.ChannelType {
	return types.ChannelSlack
}

// Send posts the subject and body as a single DM. Unknown or departed users
// surface as a rejected DeliveryResult.
func (s *Sender) Send(ctx context.Context, msg core.Message) (types.DeliveryResult, error) {
	s.logger.Info("attempting slack delivery", "slack_user", msg.To)

	text := "*" + msg.Subject + "*\n" + msg.Body
	if msg.TestMode {
		text = "[test] " + text
	}

	ts, err := s.provider.PostDirectMessage(ctx, msg.To, text)
	if err != nil {
		if res, rejected := core.RejectionResult(err); rejected {
			return res, nil
		}
		return types.DeliveryResult{}, err
	}

	return types.DeliveryResult{Accepted: true, ProviderMsgID: ts}, nil
}
