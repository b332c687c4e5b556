package consumer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/metrics"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository"
)

// BatchWriterConfig configures the batch writer
type BatchWriterConfig struct {
	MaxBatchSize int
	FlushTimeout time.Duration
	// HighWaterMark logs a warning once the buffer grows past it.
	HighWaterMark int
	// SessionTimeout delays the aggregation job scheduled for each
	// session_start event.
	SessionTimeout time.Duration
}

// BatchStats is a point-in-time view of the writer.
type BatchStats struct {
	BufferSize          int
	InFlight            bool
	ConsecutiveFailures int
	EventsFlushed       uint64
	FlushCount          uint64
	LastError           error
}

type stopper interface {
	Stop() bool
}

// BatchWriter buffers events and writes them to the repository in bulk. A
// flush is triggered by the buffer reaching MaxBatchSize or by a timer armed
// on the first append into an empty buffer, whichever comes first. Only one
// flush runs at a time; appends during a flush land in the next batch. A
// failed batch is put back at the front of the buffer and retried on the
// next trigger. An event redelivered while still buffered replaces its
// buffered copy in place, since only the newest receipt handle can delete
// the message.
type BatchWriter struct {
	repository repository.EventWriter
	publisher  queue.Publisher
	config     BatchWriterConfig
	log        *zap.Logger
	afterFunc  func(time.Duration, func()) stopper
	flushCtx   context.Context

	mu                  sync.Mutex
	idle                *sync.Cond
	buffer              []*Envelope
	index               map[uuid.UUID]int
	timer               stopper
	timerGen            uint64
	flushing            bool
	closed              bool
	consecutiveFailures int
	lastErr             error
	aboveHighWater      bool

	eventsFlushed atomic.Uint64
	flushCount    atomic.Uint64
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(repo repository.EventWriter, publisher queue.Publisher, config BatchWriterConfig, log *zap.Logger) *BatchWriter {
	w := &BatchWriter{
		repository: repo,
		publisher:  publisher,
		config:     config,
		log:        log,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		flushCtx: context.Background(),
		index:    make(map[uuid.UUID]int),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// Start appends envelopes until in is closed or ctx is done, then flushes
// whatever is buffered.
func (w *BatchWriter) Start(ctx context.Context, in <-chan *Envelope) {
	// Store calls are not cut short by shutdown.
	flushCtx := context.WithoutCancel(ctx)
	w.mu.Lock()
	w.flushCtx = flushCtx
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Batch writer shutting down")
			w.Close(flushCtx)
			return

		case envelope, ok := <-in:
			if !ok {
				w.log.Info("Batch writer input channel closed")
				w.Close(flushCtx)
				return
			}
			w.Append(flushCtx, envelope)
		}
	}
}

// Append adds an envelope to the buffer, flushing synchronously when the
// buffer reaches MaxBatchSize.
func (w *BatchWriter) Append(ctx context.Context, envelope *Envelope) {
	w.mu.Lock()
	if i, ok := w.index[envelope.Event.ID]; ok {
		w.buffer[i] = envelope
		w.mu.Unlock()
		w.log.Debug("Replaced redelivered event in buffer",
			zap.String("event_id", envelope.Event.ID.String()))
		return
	}
	w.index[envelope.Event.ID] = len(w.buffer)
	w.buffer = append(w.buffer, envelope)
	w.observeLocked()

	if len(w.buffer) >= w.config.MaxBatchSize {
		w.mu.Unlock()
		w.log.Debug("Batch size threshold reached", zap.Int("batch_size", w.config.MaxBatchSize))
		w.Flush(ctx)
		return
	}

	if w.timer == nil {
		w.armLocked()
	}
	w.mu.Unlock()
}

// Flush writes the current buffer. It returns false without doing anything
// when another flush is in progress or the buffer is empty, and false when
// the write failed.
func (w *BatchWriter) Flush(ctx context.Context) bool {
	w.mu.Lock()
	if w.flushing || len(w.buffer) == 0 {
		w.mu.Unlock()
		return false
	}
	w.flushing = true
	batch := w.buffer
	w.buffer = nil
	clear(w.index)
	w.disarmLocked()
	w.mu.Unlock()

	err := w.write(ctx, batch)

	w.mu.Lock()
	w.flushing = false
	if err != nil {
		w.restoreLocked(batch)
		w.consecutiveFailures++
		w.lastErr = err
	} else {
		w.consecutiveFailures = 0
		w.lastErr = nil
	}
	again := err == nil && len(w.buffer) >= w.config.MaxBatchSize
	if !again && len(w.buffer) > 0 && w.timer == nil {
		w.armLocked()
	}
	w.observeLocked()
	w.idle.Broadcast()
	w.mu.Unlock()

	if again {
		return w.Flush(ctx)
	}
	return err == nil
}

// Close waits for an in-flight flush, then forces a final one. Events that
// still fail to write are left unacknowledged for redelivery.
func (w *BatchWriter) Close(ctx context.Context) {
	w.mu.Lock()
	for w.flushing {
		w.idle.Wait()
	}
	w.closed = true
	w.disarmLocked()
	pending := len(w.buffer)
	w.mu.Unlock()

	if pending == 0 {
		return
	}

	w.log.Info("Flushing final batch", zap.Int("envelope_count", pending))
	if !w.Flush(ctx) {
		w.log.Error("Final flush failed, events will be redelivered",
			zap.Int("envelope_count", pending))
	}
}

// Stats returns a snapshot of the writer's state.
func (w *BatchWriter) Stats() BatchStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return BatchStats{
		BufferSize:          len(w.buffer),
		InFlight:            w.flushing,
		ConsecutiveFailures: w.consecutiveFailures,
		EventsFlushed:       w.eventsFlushed.Load(),
		FlushCount:          w.flushCount.Load(),
		LastError:           w.lastErr,
	}
}

// restoreLocked puts a failed batch back in front of the live buffer. Live
// envelopes for events already in the batch take the batch slot.
func (w *BatchWriter) restoreLocked(batch []*Envelope) {
	live := w.buffer
	w.buffer = make([]*Envelope, 0, len(batch)+len(live))
	clear(w.index)
	for _, env := range slices.Concat(batch, live) {
		if i, ok := w.index[env.Event.ID]; ok {
			w.buffer[i] = env
			continue
		}
		w.index[env.Event.ID] = len(w.buffer)
		w.buffer = append(w.buffer, env)
	}
}

func (w *BatchWriter) armLocked() {
	if w.closed {
		return
	}
	w.timerGen++
	gen := w.timerGen
	w.timer = w.afterFunc(w.config.FlushTimeout, func() { w.onTimer(gen) })
}

// disarmLocked cancels the pending timer. A timer that already fired sees a
// newer generation and does nothing.
func (w *BatchWriter) disarmLocked() {
	w.timerGen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *BatchWriter) onTimer(gen uint64) {
	w.mu.Lock()
	if gen != w.timerGen {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	ctx := w.flushCtx
	size := len(w.buffer)
	w.mu.Unlock()

	w.log.Debug("Batch timeout reached", zap.Int("envelope_count", size))
	w.Flush(ctx)
}

func (w *BatchWriter) observeLocked() {
	size := len(w.buffer)
	metrics.BatchBufferSize.Set(float64(size))
	metrics.BatchConsecutiveFailures.Set(float64(w.consecutiveFailures))

	if w.config.HighWaterMark <= 0 {
		return
	}
	if size > w.config.HighWaterMark && !w.aboveHighWater {
		w.aboveHighWater = true
		w.log.Warn("Batch buffer above high-water mark",
			zap.Int("buffer_size", size),
			zap.Int("high_water_mark", w.config.HighWaterMark),
			zap.Int("consecutive_failures", w.consecutiveFailures))
	} else if size <= w.config.HighWaterMark {
		w.aboveHighWater = false
	}
}

// write inserts the batch, then acks it and schedules session aggregation.
func (w *BatchWriter) write(ctx context.Context, batch []*Envelope) error {
	events := make([]*domain.Event, len(batch))
	for i, env := range batch {
		events[i] = env.Event
	}

	start := time.Now()
	insertedCount, err := w.repository.InsertEvents(ctx, events)
	if err == nil && insertedCount != len(events) {
		err = fmt.Errorf("partial insert: %d of %d events", insertedCount, len(events))
	}

	if err != nil {
		metrics.BatchFlushDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		w.log.Error("Failed to insert batch, keeping events for retry",
			zap.Int("event_count", len(events)),
			zap.Error(err))
		return err
	}

	metrics.BatchFlushDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	metrics.BatchFlushSize.Observe(float64(len(events)))
	metrics.EventsFlushed.Add(float64(len(events)))
	w.eventsFlushed.Add(uint64(len(events)))
	w.flushCount.Add(1)

	w.log.Info("Successfully inserted events", zap.Int("count", insertedCount))
	w.settle(ctx, batch)
	return nil
}

// settle acks every stored envelope. A session_start whose aggregation job
// cannot be enqueued is left unacked so that redelivery schedules it again;
// the re-inserted event collapses onto the stored one.
func (w *BatchWriter) settle(ctx context.Context, batch []*Envelope) {
	for _, env := range batch {
		if env.Event.Name == domain.EventSessionStart {
			if err := w.scheduleSession(ctx, env.Event); err != nil {
				w.log.Error("Failed to schedule session aggregation",
					zap.String("session_id", env.Event.SessionID),
					zap.Error(err))
				if err := env.Nack(ctx); err != nil {
					w.log.Error("Failed to nack envelope", zap.Error(err))
				}
				continue
			}
		}
		if err := env.Ack(ctx); err != nil {
			w.log.Error("Failed to ack envelope",
				zap.String("event_id", env.Event.ID.String()),
				zap.Error(err))
		}
	}
}

func (w *BatchWriter) scheduleSession(ctx context.Context, event *domain.Event) error {
	if w.publisher == nil {
		return nil
	}
	return w.publisher.Enqueue(ctx, domain.TopicSessions,
		domain.SessionJob{ProjectID: event.ProjectID, SessionID: event.SessionID},
		queue.EnqueueOptions{
			IdempotencyKey: event.SessionID,
			GroupID:        event.ProjectID,
			Delay:          w.config.SessionTimeout,
		})
}
