package repository

import (
	"context"
	"time"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// EventWriter persists canonical events. Inserts must be safe to retry: the
// store deduplicates on event id.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []*domain.Event) (int, error)
}

// ProfileStore reads and appends profile snapshots. There is no concurrency
// control between a read and the following append.
type ProfileStore interface {
	// GetProfile returns the fold of all snapshots, or nil when none exist.
	GetProfile(ctx context.Context, projectID, profileID string) (*domain.Profile, error)
	// GetProfileNumber returns the property from the latest snapshot that
	// carries it, or 0 when no snapshot does.
	GetProfileNumber(ctx context.Context, projectID, profileID, property string) (float64, error)
	InsertProfile(ctx context.Context, profile *domain.Profile) error
}

// SessionStore aggregates member events and stores session summaries.
type SessionStore interface {
	// AggregateSession returns nil when the session has no events.
	AggregateSession(ctx context.Context, projectID, sessionID string) (*domain.SessionAggregate, error)
	InsertSession(ctx context.Context, session *domain.Session) error
}

// RollupStore maintains pre-aggregated daily states.
type RollupStore interface {
	RefreshDailyRollup(ctx context.Context, projectID string, day time.Time) error
}

// AnalyticsStore runs the read-side queries.
type AnalyticsStore interface {
	Metrics(ctx context.Context, query domain.MetricsQuery) (*domain.MetricsResult, error)
	RollupMetrics(ctx context.Context, query domain.MetricsQuery) (*domain.MetricsResult, error)
	// FunnelCounts returns the number of devices reaching each step.
	FunnelCounts(ctx context.Context, query domain.FunnelQuery) ([]uint64, error)
	// RetentionCohorts returns rows without Rate filled in.
	RetentionCohorts(ctx context.Context, query domain.RetentionQuery) ([]domain.RetentionRow, error)
}

// Store is everything the ClickHouse repository provides.
type Store interface {
	EventWriter
	ProfileStore
	SessionStore
	RollupStore
	AnalyticsStore

	// InitSchema initializes the database schema (creates tables if they don't exist)
	InitSchema(ctx context.Context) error

	// Ping checks if the database connection is alive
	Ping(ctx context.Context) error

	// Close closes the repository and releases resources
	Close() error
}
