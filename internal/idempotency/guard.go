package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Guard tracks which job keys have already taken effect.
type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// ValkeyGuard is a Guard over a KV. With failOpen set, KV errors are logged
// and treated as "not seen" so an outage degrades to plain at-least-once.
type ValkeyGuard struct {
	kv       KV
	ttl      time.Duration
	failOpen bool
	log      *zap.Logger
}

func NewGuard(kv KV, ttl time.Duration, failOpen bool, log *zap.Logger) *ValkeyGuard {
	return &ValkeyGuard{kv: kv, ttl: ttl, failOpen: failOpen, log: log}
}

func processedKey(key string) string {
	return "processed:" + key
}

func (g *ValkeyGuard) Seen(ctx context.Context, key string) (bool, error) {
	seen, err := g.kv.Exists(ctx, processedKey(key))
	if err != nil {
		if g.failOpen {
			g.log.Warn("Idempotency check failed, processing anyway",
				zap.String("key", key),
				zap.Error(err))
			return false, nil
		}
		return false, err
	}
	return seen, nil
}

func (g *ValkeyGuard) Mark(ctx context.Context, key string) error {
	if err := g.kv.Set(ctx, processedKey(key), "1", g.ttl); err != nil {
		if g.failOpen {
			g.log.Warn("Failed to mark job processed",
				zap.String("key", key),
				zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// NopGuard never reports a key as seen.
type NopGuard struct{}

func (NopGuard) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopGuard) Mark(context.Context, string) error         { return nil }
