package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/queue"
)

const testQueueURL = "https://sqs.eu-central-1.amazonaws.com/123/test-queue"

var testTimestamp = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// MockPublisher is a mock implementation of queue.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Enqueue(ctx context.Context, topic domain.Topic, payload any, opts queue.EnqueueOptions) error {
	args := m.Called(ctx, topic, payload, opts)
	return args.Error(0)
}

// recordingWriter is an EventWriter that records the device ids of every
// batch it is handed. Queued errors are returned one per call.
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]string
	errs    []error
}

func (w *recordingWriter) InsertEvents(_ context.Context, events []*domain.Event) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.DeviceID
	}
	w.batches = append(w.batches, ids)

	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

func (w *recordingWriter) Batches() [][]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]string(nil), w.batches...)
}

// fakeGuard is an in-memory idempotency.Guard.
type fakeGuard struct {
	mu      sync.Mutex
	seen    map[string]bool
	marked  []string
	seenErr error
}

func newFakeGuard(seen ...string) *fakeGuard {
	g := &fakeGuard{seen: map[string]bool{}}
	for _, k := range seen {
		g.seen[k] = true
	}
	return g
}

func (g *fakeGuard) Seen(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seenErr != nil {
		return false, g.seenErr
	}
	return g.seen[key], nil
}

func (g *fakeGuard) Mark(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen[key] = true
	g.marked = append(g.marked, key)
	return nil
}

func (g *fakeGuard) Marked() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.marked...)
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (t *fakeTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback as the runtime would, even if Stop was called
// after the timer had been scheduled to fire.
func (t *fakeTimer) Fire() {
	t.mu.Lock()
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Timers() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTimer(nil), c.timers...)
}

func (c *fakeClock) Last() *fakeTimer {
	timers := c.Timers()
	if len(timers) == 0 {
		return nil
	}
	return timers[len(timers)-1]
}

// ackCounter records how an envelope was settled.
type ackCounter struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (c *ackCounter) Acks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acks
}

func (c *ackCounter) Nacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nacks
}

func newTestEvent(deviceID, name string) *domain.Event {
	return &domain.Event{
		ID:           uuid.NewSHA1(uuid.NameSpaceOID, []byte(deviceID+name)),
		ProjectID:    "proj_1",
		Name:         name,
		DeviceID:     deviceID,
		SessionID:    "sess_" + deviceID,
		CreatedAt:    testTimestamp,
		ReferrerType: domain.ReferrerDirect,
		Device:       domain.DeviceDesktop,
		Properties:   "{}",
	}
}

func createTestEnvelope(deviceID string) (*Envelope, *ackCounter) {
	return createNamedEnvelope(deviceID, "screen_view")
}

func createNamedEnvelope(deviceID, name string) (*Envelope, *ackCounter) {
	counter := &ackCounter{}
	ack := func(context.Context) error {
		counter.mu.Lock()
		counter.acks++
		counter.mu.Unlock()
		return nil
	}
	nack := func(context.Context) error {
		counter.mu.Lock()
		counter.nacks++
		counter.mu.Unlock()
		return nil
	}
	return NewEnvelope(nil, newTestEvent(deviceID, name), ack, nack), counter
}

func newJobEnvelope(t interface{ Fatalf(string, ...any) }, topic domain.Topic, payload any, key string) (*Envelope, *ackCounter) {
	job, err := queue.NewJob(topic, payload, key, testTimestamp)
	if err != nil {
		t.Fatalf("failed to build job: %v", err)
	}
	counter := &ackCounter{}
	ack := func(context.Context) error {
		counter.mu.Lock()
		counter.acks++
		counter.mu.Unlock()
		return nil
	}
	nack := func(context.Context) error {
		counter.mu.Lock()
		counter.nacks++
		counter.mu.Unlock()
		return nil
	}
	return NewEnvelope(job, nil, ack, nack), counter
}
