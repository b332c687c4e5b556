package consumer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/metrics"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// JobRunner is a Sink that hands each envelope to a Handler with at most
// Concurrency jobs in flight. Jobs run independently; there is no locking
// between jobs that touch the same profile or session.
type JobRunner struct {
	topic       domain.Topic
	handler     Handler
	concurrency int
	log         *zap.Logger
}

func NewJobRunner(topic domain.Topic, handler Handler, concurrency int, log *zap.Logger) *JobRunner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &JobRunner{topic: topic, handler: handler, concurrency: concurrency, log: log}
}

// Start runs jobs until in is closed, then waits for in-flight jobs.
func (r *JobRunner) Start(ctx context.Context, in <-chan *Envelope) {
	var g errgroup.Group
	g.SetLimit(r.concurrency)

	for envelope := range in {
		g.Go(func() error {
			r.run(ctx, envelope)
			return nil
		})
	}

	_ = g.Wait()
	r.log.Info("Job runner stopped", zap.String("topic", string(r.topic)))
}

func (r *JobRunner) run(ctx context.Context, envelope *Envelope) {
	topic := string(r.topic)
	start := time.Now()
	err := r.handler.Handle(ctx, envelope.Job)
	metrics.JobDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.JobsProcessed.WithLabelValues(topic, "success").Inc()
		// Settle even if the job context was cancelled after the effect.
		if err := envelope.Ack(context.WithoutCancel(ctx)); err != nil {
			r.log.Error("Failed to ack job", zap.String("topic", topic), zap.Error(err))
		}

	case errors.Is(err, queue.ErrMalformedJob):
		metrics.JobsProcessed.WithLabelValues(topic, "malformed").Inc()
		r.log.Warn("Dropping malformed job",
			zap.String("topic", topic),
			zap.String("idempotency_key", envelope.Job.IdempotencyKey),
			zap.Error(err))
		if err := envelope.Ack(context.WithoutCancel(ctx)); err != nil {
			r.log.Error("Failed to delete malformed job", zap.String("topic", topic), zap.Error(err))
		}

	default:
		metrics.JobsProcessed.WithLabelValues(topic, "failure").Inc()
		r.log.Error("Job failed, leaving for redelivery",
			zap.String("topic", topic),
			zap.String("idempotency_key", envelope.Job.IdempotencyKey),
			zap.Error(err))
		if err := envelope.Nack(ctx); err != nil {
			r.log.Error("Failed to nack job", zap.String("topic", topic), zap.Error(err))
		}
	}
}
