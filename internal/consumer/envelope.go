package consumer

import (
	"context"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// Envelope wraps a decoded job with acknowledgment callbacks. Event is set
// only for jobs on the events topic.
type Envelope struct {
	Job   *queue.Job
	Event *domain.Event
	ack   func(context.Context) error
	nack  func(context.Context) error
}

// NewEnvelope creates a new message envelope
func NewEnvelope(job *queue.Job, event *domain.Event, ack, nack func(context.Context) error) *Envelope {
	return &Envelope{
		Job:   job,
		Event: event,
		ack:   ack,
		nack:  nack,
	}
}

// Ack acknowledges successful processing
func (e *Envelope) Ack(ctx context.Context) error {
	if e.ack != nil {
		return e.ack(ctx)
	}
	return nil
}

// Nack negatively acknowledges processing
func (e *Envelope) Nack(ctx context.Context) error {
	if e.nack != nil {
		return e.nack(ctx)
	}
	return nil
}
