// Package whatsapp implements the WhatsApp delivery channel over Twilio.
package whatsapp

import (
	"context"

	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

// Provider is the messaging surface the sender needs. Implemented by
// external.TwilioClient and the local stub.
type Provider interface {
	SendWhatsApp(ctx context.Context, toNumber, body string) (sid string, err error)
}

// Compile-time assertion that Sender implements core.Sender.
var _ core.Sender = (*Sender)(nil)

// Sender delivers rendered messages as WhatsApp texts.
type Sender struct {
	provider Provider
	logger   types.Logger
}

// NewSender creates a WhatsApp Sender over the given provider.
func NewSender(provider Provider, logger types.Logger) *Sender {
	return &Sender{provider: provider, logger: logger}
}

// Channel returns the whatsapp channel identifier.
func (s *Sender) Channel() types.ChannelType {
	return types.ChannelWhatsApp
}

// Send delivers subject and body as one text. Invalid numbers and opted-out
// recipients surface as a rejected DeliveryResult and are never retried.
func (s *Sender) Send(ctx context.Context, msg core.Message) (types.DeliveryResult, error) {
	s.logger.Info("attempting whatsapp delivery", "to", RedactNumber(msg.To))

	body := msg.Subject + "\n" + msg.Body
	if msg.TestMode {
		body = "[test] " + body
	}

	sid, err := s.provider.SendWhatsApp(ctx, msg.To, body)
	if err != nil {
		if res, rejected := core.RejectionResult(err); rejected {
			return res, nil
		}
		return types.DeliveryResult{}, err
	}

	return types.DeliveryResult{Accepted: true, ProviderMsgID: sid}, nil
}

// RedactNumber masks a phone number for safe logging, keeping only the last
// four digits.
func RedactNumber(number string) string {
	if len(number) <= 4 {
		return "***"
	}
	return "***" + number[len(number)-4:]
}
