package consumer

import (
	"context"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// Sink is the last pipeline stage. It must ack or nack every envelope it
// takes and return once in is closed or ctx is done.
type Sink interface {
	Start(ctx context.Context, in <-chan *Envelope)
}

// Handler performs the effect of one job. Returning an error leaves the
// message on the queue for redelivery, unless the error wraps
// queue.ErrMalformedJob, in which case the message is dropped.
type Handler interface {
	Handle(ctx context.Context, job *queue.Job) error
}
