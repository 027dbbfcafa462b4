package core

import (
	"context"
	"fmt"
	"time"

	"salespulse/internal/types"
)

// Outcome is the queue-level verdict for one dispatch attempt. The worker
// loop maps it onto queue operations: Retry re-enqueues with backoff,
// everything else acknowledges.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
	OutcomeRetry     Outcome = "retry"
)

// DispatchStore is the persistence surface the dispatcher needs: the
// dispatch record state machine plus read access to the insight, the user's
// preference, and the owning store's name.
type DispatchStore interface {
	BeginAttempt(ctx context.Context, dispatchID string) (attempt int, live bool, err error)
	SetRetrying(ctx context.Context, dispatchID string, reason string) error
	SetSent(ctx context.Context, dispatchID string, providerMsgID string) error
	SetFailed(ctx context.Context, dispatchID string, reason string) error

	GetInsight(ctx context.Context, insightID string) (*types.Insight, error)
	GetPreference(ctx context.Context, userID string) (*types.NotificationPreference, error)
	GetStoreName(ctx context.Context, storeID string) (string, error)
}

// Dispatcher executes DispatchJobs against the dispatch record state
// machine. It guarantees at-most-once observable delivery per (insight,
// channel, user) triple: the conditional BeginAttempt transition is the
// gate, so a redelivered job against a terminal record acknowledges without
// touching the provider.
type Dispatcher struct {
	store       DispatchStore
	senders     map[types.ChannelType]Sender
	metrics     Metrics
	maxAttempts int
	logger      types.Logger
}

// NewDispatcher creates a Dispatcher over the given senders. maxAttempts
// caps transient retries per dispatch record.
func NewDispatcher(store DispatchStore, senders []Sender, metrics Metrics, maxAttempts int, logger types.Logger) *Dispatcher {
	byChannel := make(map[types.ChannelType]Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &Dispatcher{
		store:       store,
		senders:     byChannel,
		metrics:     metrics,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Dispatch processes one job. Failures of sibling channels never affect this
// job: each (insight, channel, user) triple fails or succeeds alone.
func (d *Dispatcher) Dispatch(ctx context.Context, job types.DispatchJob) (Outcome, error) {
	dispatchID := types.DispatchID(job.InsightID, job.Channel, job.UserID)
	log := d.logger.With(
		"dispatch_id", dispatchID,
		"channel", string(job.Channel),
		"user_id", job.UserID,
	)

	attempt, live, err := d.store.BeginAttempt(ctx, dispatchID)
	if err != nil {
		// Storage failure before any provider call; safe to redeliver.
		return OutcomeRetry, err
	}
	if !live {
		log.Info("dispatch already terminal, skipping")
		return OutcomeDuplicate, nil
	}

	msg, reject, err := d.prepare(ctx, job)
	if err != nil {
		// Storage failure while loading delivery state; the record stays
		// live and the job is redelivered.
		return OutcomeRetry, err
	}
	if reject != "" {
		return d.fail(ctx, dispatchID, job.Channel, reject, log)
	}

	sender, ok := d.senders[job.Channel]
	if !ok {
		return d.fail(ctx, dispatchID, job.Channel, fmt.Sprintf("no sender configured for channel %s", job.Channel), log)
	}

	start := time.Now()
	res, sendErr := sender.Send(ctx, msg)
	d.metrics.RecordLatency(ctx, job.Channel, time.Since(start))

	switch {
	case sendErr != nil && !types.IsTransient(sendErr):
		return d.fail(ctx, dispatchID, job.Channel, sendErr.Error(), log)

	case sendErr != nil:
		if attempt >= d.maxAttempts {
			reason := fmt.Sprintf("retries exhausted after %d attempts: %v", attempt, sendErr)
			return d.fail(ctx, dispatchID, job.Channel, reason, log)
		}
		if err := d.store.SetRetrying(ctx, dispatchID, sendErr.Error()); err != nil {
			log.Error("failed to mark dispatch retrying", "error", err.Error())
		}
		d.metrics.RecordDelivery(ctx, job.Channel, MetricRetried)
		log.Warn("delivery failed, will retry",
			"attempt", attempt,
			"max_attempts", d.maxAttempts,
			"error", sendErr.Error(),
		)
		return OutcomeRetry, nil

	case !res.Accepted:
		// Provider rejection is terminal regardless of attempt count.
		return d.fail(ctx, dispatchID, job.Channel, res.RejectReason, log)

	default:
		if err := d.store.SetSent(ctx, dispatchID, res.ProviderMsgID); err != nil {
			// The provider accepted but the record update failed. Do not
			// re-enqueue: a redelivery would double-send.
			log.Error("delivered but failed to mark dispatch sent", "error", err.Error())
			return OutcomeDelivered, err
		}
		d.metrics.RecordDelivery(ctx, job.Channel, MetricSuccess)
		log.Info("delivery succeeded", "provider_message_id", res.ProviderMsgID, "attempt", attempt)
		return OutcomeDelivered, nil
	}
}

// prepare loads the insight and preference and renders the message. A
// non-empty reject means the job references state that does not support a
// send, such as a missing row or a disabled channel, and the dispatch is
// failed terminally. An error means the lookup itself failed and the job
// is safe to redeliver.
func (d *Dispatcher) prepare(ctx context.Context, job types.DispatchJob) (Message, string, error) {
	insight, err := d.store.GetInsight(ctx, job.InsightID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundInsight) {
			return Message{}, fmt.Sprintf("insight %s does not exist", job.InsightID), nil
		}
		return Message{}, "", fmt.Errorf("insight %s unavailable: %w", job.InsightID, err)
	}

	pref, err := d.store.GetPreference(ctx, job.UserID)
	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundPreference) {
			return Message{}, fmt.Sprintf("no preference row for user %s", job.UserID), nil
		}
		return Message{}, "", fmt.Errorf("preference for user %s unavailable: %w", job.UserID, err)
	}
	if !pref.Enabled(job.Channel) {
		return Message{}, fmt.Sprintf("channel %s disabled at delivery time", job.Channel), nil
	}
	addr := pref.Address(job.Channel)
	if addr == "" {
		return Message{}, fmt.Sprintf("no %s address configured", job.Channel), nil
	}

	storeName, err := d.store.GetStoreName(ctx, insight.StoreID)
	if err != nil {
		storeName = insight.StoreID
	}

	msg := Render(insight, storeName)
	msg.To = addr
	msg.TestMode = job.TestMode
	return msg, "", nil
}

func (d *Dispatcher) fail(ctx context.Context, dispatchID string, channel types.ChannelType, reason string, log types.Logger) (Outcome, error) {
	if err := d.store.SetFailed(ctx, dispatchID, reason); err != nil {
		log.Error("failed to mark dispatch failed", "error", err.Error())
		return OutcomeFailed, err
	}
	d.metrics.RecordDelivery(ctx, channel, MetricFailed)
	log.Error("delivery permanently failed", "reason", reason)
	return OutcomeFailed, nil
}
