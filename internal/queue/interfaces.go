package queue

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// MaxDelay is the longest Delay a queue honors. Longer waits must be split
// into several enqueues.
const MaxDelay = 15 * time.Minute

// EnqueueOptions tune a single enqueue call.
type EnqueueOptions struct {
	// IdempotencyKey de-duplicates redeliveries of the same logical job.
	IdempotencyKey string
	// GroupID orders jobs within a FIFO queue; defaults to the topic.
	GroupID string
	// Delay postpones visibility of the job. Queues that cannot delay a
	// single message reject it.
	Delay time.Duration
}

// Publisher enqueues jobs on a topic.
type Publisher interface {
	Enqueue(ctx context.Context, topic domain.Topic, payload any, opts EnqueueOptions) error
}

// QueueConsumer defines the interface for consuming messages from one topic's queue
type QueueConsumer interface {
	ReceiveMessages(ctx context.Context, input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	QueueURL() string
}
