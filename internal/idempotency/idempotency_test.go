package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func TestGuard_MarkThenSeen(t *testing.T) {
	kv := newFakeKV()
	guard := NewGuard(kv, time.Hour, false, zap.NewNop())
	ctx := context.Background()

	seen, err := guard.Seen(ctx, "events:e1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Mark(ctx, "events:e1"))

	seen, err = guard.Seen(ctx, "events:e1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, kv.ttls["processed:events:e1"])
}

func TestGuard_FailOpen(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	guard := NewGuard(kv, time.Hour, true, zap.NewNop())

	seen, err := guard.Seen(context.Background(), "k")
	assert.NoError(t, err)
	assert.False(t, seen)
	assert.NoError(t, guard.Mark(context.Background(), "k"))
}

func TestGuard_FailClosed(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	guard := NewGuard(kv, time.Hour, false, zap.NewNop())

	_, err := guard.Seen(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, guard.Mark(context.Background(), "k"))
}

func TestNopGuard(t *testing.T) {
	var g Guard = NopGuard{}
	require.NoError(t, g.Mark(context.Background(), "k"))
	seen, err := g.Seen(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestAliases(t *testing.T) {
	kv := newFakeKV()
	aliases := NewAliases(kv, 8760*time.Hour)
	ctx := context.Background()

	profileID, err := aliases.Alias(ctx, "p1", "dev_1")
	require.NoError(t, err)
	assert.Empty(t, profileID)

	require.NoError(t, aliases.SetAlias(ctx, "p1", "dev_1", "user_1"))

	profileID, err = aliases.Alias(ctx, "p1", "dev_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", profileID)
	assert.Equal(t, 8760*time.Hour, kv.ttls["alias:p1:dev_1"])

	other, err := aliases.Alias(ctx, "p2", "dev_1")
	require.NoError(t, err)
	assert.Empty(t, other)
}
