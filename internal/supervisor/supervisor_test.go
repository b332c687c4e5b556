package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
	listening atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	f.listening.Store(true)
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	if f.shutdowns.Add(1) == 1 {
		close(f.stop)
	}
	return nil
}

type blockingService struct {
	started atomic.Bool
	stopped atomic.Bool
}

func (b *blockingService) Serve(ctx context.Context) error {
	b.started.Store(true)
	<-ctx.Done()
	b.stopped.Store(true)
	return ctx.Err()
}

func TestNewTree_AppliesDefaults(t *testing.T) {
	tree := NewTree("test", TreeConfig{FailureBackoff: time.Second}, zap.NewNop())

	cfg := tree.Config()
	assert.Equal(t, 5.0, cfg.FailureThreshold)
	assert.Equal(t, 30.0, cfg.FailureDecay)
	assert.Equal(t, time.Second, cfg.FailureBackoff)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestTree_RunsAndStopsServices(t *testing.T) {
	tree := NewTree("test", DefaultTreeConfig(), zap.NewNop())

	consumer := &blockingService{}
	server := newFakeServer()
	tree.AddConsumer(consumer)
	tree.AddHTTP(NewHTTPService("health", server, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	require.Eventually(t, consumer.started.Load, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, server.listening.Load, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop")
	}

	assert.True(t, consumer.stopped.Load())
	assert.Equal(t, int32(1), server.shutdowns.Load())
}

func TestHTTPService_ListenError(t *testing.T) {
	server := newFakeServer()
	server.listenErr = errors.New("address in use")
	svc := NewHTTPService("health", server, 0)

	err := svc.Serve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.Equal(t, "health", svc.String())
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	server := newFakeServer()
	svc := NewHTTPService("api", server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, int32(1), server.shutdowns.Load())
}
