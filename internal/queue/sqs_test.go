package queue

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"salespulse/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)        {}
func (nopLogger) Error(string, ...any)       {}
func (nopLogger) Warn(string, ...any)        {}
func (nopLogger) With(...any) types.Logger   { return nopLogger{} }

// mockSQS captures the inputs of each SQS call.
type mockSQS struct {
	sendInput    *sqs.SendMessageInput
	receiveOut   *sqs.ReceiveMessageOutput
	deleteInput  *sqs.DeleteMessageInput
	visInput     *sqs.ChangeMessageVisibilityInput
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sendInput = in
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func (m *mockSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if m.receiveOut != nil {
		return m.receiveOut, nil
	}
	return &sqs.ReceiveMessageOutput{}, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleteInput = in
	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	m.visInput = in
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func TestSQSQueue_Enqueue_ClampsDelay(t *testing.T) {
	m := &mockSQS{}
	q := NewSQSQueue(m, "https://sqs.test/q", 5*time.Minute, nopLogger{})

	if err := q.Enqueue(context.Background(), []byte(`{"a":1}`), 30*time.Minute); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if m.sendInput.DelaySeconds != 900 {
		t.Errorf("DelaySeconds = %d, want clamped 900", m.sendInput.DelaySeconds)
	}
	if aws.ToString(m.sendInput.MessageBody) != `{"a":1}` {
		t.Errorf("unexpected body %q", aws.ToString(m.sendInput.MessageBody))
	}
}

func TestSQSQueue_Receive_ParsesAttributes(t *testing.T) {
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &mockSQS{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []sqsTypes.Message{
				{
					MessageId:     aws.String("msg-7"),
					Body:          aws.String(`{"store_id":"st_1"}`),
					ReceiptHandle: aws.String("rh-7"),
					Attributes: map[string]string{
						"ApproximateReceiveCount": "3",
						"SentTimestamp":           "1772366400000", // 2026-03-01T12:00:00Z
					},
				},
			},
		},
	}
	q := NewSQSQueue(m, "https://sqs.test/q", 5*time.Minute, nopLogger{})

	tasks, err := q.Receive(context.Background(), 10, 20*time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks, want 1", len(tasks))
	}
	task := tasks[0]
	if task.DequeueCount != 3 {
		t.Errorf("DequeueCount = %d, want 3", task.DequeueCount)
	}
	if !task.EnqueuedAt.Equal(sent) {
		t.Errorf("EnqueuedAt = %v, want %v", task.EnqueuedAt, sent)
	}

	// Ack flows the receipt handle through.
	if err := q.Ack(context.Background(), task); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if aws.ToString(m.deleteInput.ReceiptHandle) != "rh-7" {
		t.Errorf("Ack receipt = %q, want rh-7", aws.ToString(m.deleteInput.ReceiptHandle))
	}
}

func TestSQSQueue_Retry_SetsVisibility(t *testing.T) {
	m := &mockSQS{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []sqsTypes.Message{
				{MessageId: aws.String("m"), Body: aws.String("{}"), ReceiptHandle: aws.String("rh")},
			},
		},
	}
	q := NewSQSQueue(m, "https://sqs.test/q", 5*time.Minute, nopLogger{})

	tasks, err := q.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := q.Retry(context.Background(), tasks[0], 90*time.Second); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if m.visInput.VisibilityTimeout != 90 {
		t.Errorf("VisibilityTimeout = %d, want 90", m.visInput.VisibilityTimeout)
	}
}
