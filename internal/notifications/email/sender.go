// Package email implements the email delivery channel over SendGrid.
package email

import (
	"context"
	"strings"

	"salespulse/internal/notifications/core"
	"salespulse/internal/types"
)

// Provider is the transactional email surface the sender needs. Implemented
// by external.SendGridClient and the local stub.
type Provider interface {
	Send(ctx context.Context, to, subject, body string) (msgID string, err error)
}

// Compile-time assertion that Sender implements core.Sender.
var _ core.Sender = (*Sender)(nil)

// Sender delivers rendered messages as plain-text email.
type Sender struct {
	provider Provider
	logger   types.Logger
}

// NewSender creates an email Sender over the given provider.
func NewSender(provider Provider, logger types.Logger) *Sender {
	return &Sender{provider: provider, logger: logger}
}

// Channel returns the email channel identifier.
func (s *Sender) Channel() types.ChannelType {
	return types.ChannelEmail
}

// Send delivers the message. Addresses are redacted in logs; provider
// rejections (suppression list, invalid mailbox) surface as a rejected
// DeliveryResult, everything else as a classified error.
func (s *Sender) Send(ctx context.Context, msg core.Message) (types.DeliveryResult, error) {
	s.logger.Info("attempting email delivery", "to", RedactEmail(msg.To))

	subject := msg.Subject
	if msg.TestMode {
		subject = "[test] " + subject
	}

	msgID, err := s.provider.Send(ctx, msg.To, subject, msg.Body)
	if err != nil {
		if res, rejected := core.RejectionResult(err); rejected {
			return res, nil
		}
		return types.DeliveryResult{}, err
	}

	return types.DeliveryResult{Accepted: true, ProviderMsgID: msgID}, nil
}

// RedactEmail masks an email address for safe logging, keeping the first
// character of the local part and the domain: "john@gmail.com" becomes
// "j***@gmail.com". Strings without an @ are masked entirely.
func RedactEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return "***"
	}
	if parts[0] == "" {
		return "***@" + parts[1]
	}
	return string(parts[0][0]) + "***@" + parts[1]
}
