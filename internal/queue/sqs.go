package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"salespulse/internal/types"
)

// maxSQSDelay is the SQS ceiling for both DelaySeconds and per-retry
// visibility extension (15 minutes).
const maxSQSDelay = 900 * time.Second

// SQSAPI abstracts the SQS operations the queue uses, for testability.
// Production code uses *sqs.Client from aws-sdk-go-v2.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSQueue implements TaskQueue on one SQS queue URL. The queue's visibility
// timeout is the lease window; Retry shortens it to schedule redelivery.
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	lease    time.Duration
	logger   types.Logger
}

// NewSQSQueue creates an SQSQueue for the given queue URL. lease is the
// visibility window requested on each receive.
func NewSQSQueue(client SQSAPI, queueURL string, lease time.Duration, logger types.Logger) *SQSQueue {
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		lease:    lease,
		logger:   logger,
	}
}

// Enqueue sends a payload, visible after the given delay. Delays beyond the
// SQS ceiling are clamped to 900s.
func (q *SQSQueue) Enqueue(ctx context.Context, body []byte, delay time.Duration) error {
	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: clampDelaySeconds(delay),
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: send to %s: %w", q.queueURL, err)
	}
	return nil
}

// Receive long-polls for up to max tasks. DequeueCount comes from the
// ApproximateReceiveCount system attribute, EnqueuedAt from SentTimestamp.
func (q *SQSQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Task, error) {
	if max > 10 {
		max = 10 // SQS batch ceiling
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(wait.Seconds()),
		VisibilityTimeout:   int32(q.lease.Seconds()),
		MessageSystemAttributeNames: []sqsTypes.MessageSystemAttributeName{
			sqsTypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqsTypes.MessageSystemAttributeNameSentTimestamp,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive from %s: %w", q.queueURL, err)
	}

	tasks := make([]Task, 0, len(out.Messages))
	for _, m := range out.Messages {
		t := Task{
			ID:           aws.ToString(m.MessageId),
			Body:         []byte(aws.ToString(m.Body)),
			DequeueCount: 1,
			receipt:      aws.ToString(m.ReceiptHandle),
		}
		if rc, ok := m.Attributes[string(sqsTypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(rc); err == nil {
				t.DequeueCount = n
			}
		}
		if ts, ok := m.Attributes[string(sqsTypes.MessageSystemAttributeNameSentTimestamp)]; ok {
			if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
				t.EnqueuedAt = time.UnixMilli(ms).UTC()
			}
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Ack deletes the message, ending its redelivery.
func (q *SQSQueue) Ack(ctx context.Context, task Task) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(task.receipt),
	})
	if err != nil {
		return fmt.Errorf("queue: ack %s: %w", task.ID, err)
	}
	return nil
}

// Retry schedules redelivery by shrinking the message's visibility timeout
// to the backoff delay. The message is redelivered with an incremented
// receive count once the delay passes.
func (q *SQSQueue) Retry(ctx context.Context, task Task, delay time.Duration) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(task.receipt),
		VisibilityTimeout: clampDelaySeconds(delay),
	})
	if err != nil {
		return fmt.Errorf("queue: retry %s: %w", task.ID, err)
	}

	q.logger.Info("task scheduled for redelivery",
		"message_id", task.ID,
		"delay_seconds", clampDelaySeconds(delay),
		"dequeue_count", task.DequeueCount,
	)
	return nil
}

// clampDelaySeconds converts a delay to whole seconds within SQS limits.
func clampDelaySeconds(d time.Duration) int32 {
	if d < 0 {
		return 0
	}
	if d > maxSQSDelay {
		d = maxSQSDelay
	}
	return int32(d.Seconds())
}
