// Package idempotency records processed job keys and device to profile
// aliases in Valkey.
package idempotency

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/config"
)

// KV is the key/value surface the guard and alias store need.
type KV interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// Store is a KV backed by a Valkey client.
type Store struct {
	client valkey.Client
}

// NewStore connects to Valkey.
func NewStore(cfg config.Valkey) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{net.JoinHostPort(cfg.Host, cfg.Port)},
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(key).Value(value).ExSeconds(int64(ttl / time.Second)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	return nil
}

// Get returns the value and whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key: %w", err)
	}
	return v, true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

func (s *Store) Close() {
	s.client.Close()
}
