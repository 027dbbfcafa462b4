// Package core provides the shared delivery infrastructure used by the
// dispatch worker across all channels (email, slack, whatsapp). It
// centralizes preference resolution, delivery state transitions, retry
// classification, and observability, ensuring consistency across channels.
package core

import (
	"context"
	"errors"
	"time"

	"salespulse/internal/types"
)

// Message is the rendered notification handed to a channel sender. The
// sender owns provider-specific formatting; Message carries only the
// channel-neutral content.
type Message struct {
	// To is the channel address: email address, Slack user ID, or WhatsApp
	// number depending on the sender.
	To string

	Subject string
	Body    string

	// TestMode marks diagnostics traffic. Senders may tag the outbound
	// message but must deliver it for real.
	TestMode bool
}

// Sender delivers a rendered message over one channel. Implementations live
// in the sibling channel packages. A returned error means the attempt did
// not reach a provider verdict and is classified via types.IsTransient /
// types.IsPermanent; a DeliveryResult with Accepted=false is a provider
// rejection and is always terminal.
type Sender interface {
	Channel() types.ChannelType
	Send(ctx context.Context, msg Message) (types.DeliveryResult, error)
}

// RejectionResult converts a provider rejection error (invalid address,
// recipient opt-out, suppression list) into a rejected DeliveryResult.
// Returns false for everything else, including credential failures: those
// stay errors so the classification in the dispatcher handles them.
func RejectionResult(err error) (types.DeliveryResult, bool) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return types.DeliveryResult{}, false
	}
	switch appErr.Code {
	case types.ErrCodePermanentRejected, types.ErrCodePermanentAddress:
		return types.DeliveryResult{Accepted: false, RejectReason: appErr.Message}, true
	}
	return types.DeliveryResult{}, false
}

// MetricResult categorizes a delivery outcome for metrics reporting.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
	MetricRetried MetricResult = "retried"
)

// Metrics abstracts telemetry for the dispatch path. The CloudWatch
// implementation lives in metrics.go; tests and local mode use NoopMetrics.
type Metrics interface {
	RecordDelivery(ctx context.Context, channel types.ChannelType, result MetricResult)
	RecordLatency(ctx context.Context, channel types.ChannelType, duration time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
}

// NoopMetrics discards all telemetry.
type NoopMetrics struct{}

func (NoopMetrics) RecordDelivery(context.Context, types.ChannelType, MetricResult) {}
func (NoopMetrics) RecordLatency(context.Context, types.ChannelType, time.Duration) {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)                   {}
