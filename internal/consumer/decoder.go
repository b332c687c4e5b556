package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/idempotency"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/metrics"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// DecoderStage turns SQS messages into envelopes. Malformed messages are
// deleted, and messages whose idempotency key has already taken effect are
// deleted without being passed on.
type DecoderStage struct {
	consumer queue.QueueConsumer
	topic    domain.Topic
	guard    idempotency.Guard
	log      *zap.Logger
}

// NewDecoderStage creates a new decoder stage
func NewDecoderStage(consumer queue.QueueConsumer, topic domain.Topic, guard idempotency.Guard, log *zap.Logger) *DecoderStage {
	return &DecoderStage{
		consumer: consumer,
		topic:    topic,
		guard:    guard,
		log:      log,
	}
}

// Start begins decoding messages and outputs envelopes
func (d *DecoderStage) Start(ctx context.Context, in <-chan types.Message, out chan<- *Envelope) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Decoder stage shutting down")
			return
		case msg, ok := <-in:
			if !ok {
				d.log.Info("Decoder stage input channel closed")
				return
			}

			envelope := d.decode(ctx, msg)
			if envelope == nil {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- envelope:
			}
		}
	}
}

func (d *DecoderStage) decode(ctx context.Context, msg types.Message) *Envelope {
	messageID := aws.ToString(msg.MessageId)

	job, event, err := d.parse([]byte(aws.ToString(msg.Body)))
	if err != nil {
		d.log.Warn("Failed to decode message",
			zap.String("topic", string(d.topic)),
			zap.String("message_id", messageID),
			zap.Error(err))
		metrics.JobsProcessed.WithLabelValues(string(d.topic), "malformed").Inc()
		_ = d.deleteMessage(ctx, msg)
		return nil
	}

	key := d.guardKey(job, messageID)
	seen, err := d.guard.Seen(ctx, key)
	if err != nil {
		// Leave the message to become visible again.
		d.log.Error("Idempotency check failed",
			zap.String("message_id", messageID),
			zap.Error(err))
		return nil
	}
	if seen {
		d.log.Debug("Skipping already processed job",
			zap.String("topic", string(d.topic)),
			zap.String("idempotency_key", job.IdempotencyKey))
		metrics.JobsProcessed.WithLabelValues(string(d.topic), "duplicate").Inc()
		_ = d.deleteMessage(ctx, msg)
		return nil
	}

	ack := func(ctx context.Context) error {
		if err := d.deleteMessage(ctx, msg); err != nil {
			return err
		}
		return d.guard.Mark(ctx, key)
	}

	nack := func(ctx context.Context) error {
		// The message becomes visible again once its visibility timeout expires.
		return nil
	}

	return NewEnvelope(job, event, ack, nack)
}

func (d *DecoderStage) parse(body []byte) (*queue.Job, *domain.Event, error) {
	job, err := queue.Decode(body)
	if err != nil {
		return nil, nil, err
	}
	if job.Topic != d.topic {
		return nil, nil, fmt.Errorf("%w: topic %q on %q queue", queue.ErrMalformedJob, job.Topic, d.topic)
	}
	if d.topic != domain.TopicEvents {
		return job, nil, nil
	}

	var event domain.Event
	if err := job.Bind(&event); err != nil {
		return nil, nil, err
	}
	if event.ProjectID == "" || event.SessionID == "" || event.DeviceID == "" {
		return nil, nil, errors.Join(queue.ErrMalformedJob, fmt.Errorf("event %s lacks required ids", event.ID))
	}
	return job, &event, nil
}

// guardKey scopes the idempotency key to the topic, falling back to the
// SQS message id for jobs enqueued without one.
func (d *DecoderStage) guardKey(job *queue.Job, messageID string) string {
	key := job.IdempotencyKey
	if key == "" {
		key = messageID
	}
	return string(d.topic) + ":" + key
}

// deleteMessage deletes a message from SQS
func (d *DecoderStage) deleteMessage(ctx context.Context, msg types.Message) error {
	_, err := d.consumer.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(d.consumer.QueueURL()),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		d.log.Error("Failed to delete message",
			zap.String("message_id", aws.ToString(msg.MessageId)),
			zap.Error(err))
		return err
	}
	return nil
}
