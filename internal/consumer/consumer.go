package consumer

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/idempotency"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

// Consumer orchestrates a pipeline of stages for one topic: receive, decode,
// and a sink that performs the job's effect.
type Consumer struct {
	topic      domain.Topic
	receiver   *Receiver
	decoder    *DecoderStage
	sink       Sink
	bufferSize int
	log        *zap.Logger
}

// NewConsumer creates a new consumer with a pipeline architecture
func NewConsumer(topic domain.Topic, queueConsumer queue.QueueConsumer, guard idempotency.Guard, sink Sink, rcfg ReceiverConfig, log *zap.Logger) *Consumer {
	log = log.With(zap.String("topic", string(topic)))
	if rcfg.BufferSize <= 0 {
		rcfg.BufferSize = 100
	}

	return &Consumer{
		topic:      topic,
		receiver:   NewReceiver(queueConsumer, rcfg, log),
		decoder:    NewDecoderStage(queueConsumer, topic, guard, log),
		sink:       sink,
		bufferSize: rcfg.BufferSize,
		log:        log,
	}
}

// Serve runs the pipeline until ctx is done and every stage has drained.
// It implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	messageChan := make(chan types.Message, c.bufferSize)
	envelopeChan := make(chan *Envelope, c.bufferSize)

	var wg sync.WaitGroup

	// Start all pipeline stages
	wg.Add(3)

	// Stage 1: Receive messages from SQS
	go func() {
		defer wg.Done()
		c.receiver.Start(ctx, messageChan)
	}()

	// Stage 2: Decode messages into envelopes
	go func() {
		defer wg.Done()
		c.decoder.Start(ctx, messageChan, envelopeChan)
	}()

	// Stage 3: Apply the job's effect
	go func() {
		defer wg.Done()
		c.sink.Start(ctx, envelopeChan)
	}()

	c.log.Info("Consumer started")
	wg.Wait()
	c.log.Info("Consumer stopped")
	return ctx.Err()
}

func (c *Consumer) String() string {
	return "consumer/" + string(c.topic)
}
