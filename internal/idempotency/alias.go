package idempotency

import (
	"context"
	"time"
)

// AliasStore maps anonymous device ids to identified profile ids.
type AliasStore interface {
	SetAlias(ctx context.Context, projectID, deviceID, profileID string) error
	Alias(ctx context.Context, projectID, deviceID string) (string, error)
}

type ValkeyAliases struct {
	kv  KV
	ttl time.Duration
}

func NewAliases(kv KV, ttl time.Duration) *ValkeyAliases {
	return &ValkeyAliases{kv: kv, ttl: ttl}
}

func aliasKey(projectID, deviceID string) string {
	return "alias:" + projectID + ":" + deviceID
}

func (a *ValkeyAliases) SetAlias(ctx context.Context, projectID, deviceID, profileID string) error {
	return a.kv.Set(ctx, aliasKey(projectID, deviceID), profileID, a.ttl)
}

// Alias returns the profile id for a device, or "" when none is recorded.
func (a *ValkeyAliases) Alias(ctx context.Context, projectID, deviceID string) (string, error) {
	profileID, _, err := a.kv.Get(ctx, aliasKey(projectID, deviceID))
	return profileID, err
}

// NopAliases records nothing.
type NopAliases struct{}

func (NopAliases) SetAlias(context.Context, string, string, string) error { return nil }
func (NopAliases) Alias(context.Context, string, string) (string, error)  { return "", nil }
