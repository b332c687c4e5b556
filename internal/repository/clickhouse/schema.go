package clickhouse

import (
	"context"
	"fmt"
)

// Table names.
const (
	eventsTable   = "events"
	profilesTable = "profiles"
	sessionsTable = "sessions"
	rollupsTable  = "event_rollups_daily"
)

// schema lists the DDL in creation order. Events are a ReplacingMergeTree so
// that a retried batch collapses onto the rows of the first attempt.
var schema = []struct {
	table string
	ddl   string
}{
	{eventsTable, `
	CREATE TABLE IF NOT EXISTS events (
		id UUID,
		project_id LowCardinality(String),
		name LowCardinality(String),
		device_id String,
		profile_id String,
		session_id String,
		created_at DateTime64(3, 'UTC'),
		client_timestamp Nullable(DateTime64(3, 'UTC')),
		path String,
		origin Nullable(String),
		referrer Nullable(String),
		referrer_name Nullable(String),
		referrer_type LowCardinality(String),
		utm_source Nullable(String),
		utm_medium Nullable(String),
		utm_campaign Nullable(String),
		utm_term Nullable(String),
		utm_content Nullable(String),
		browser Nullable(String),
		browser_version Nullable(String),
		os Nullable(String),
		os_version Nullable(String),
		device LowCardinality(String),
		brand Nullable(String),
		model Nullable(String),
		country Nullable(String),
		region Nullable(String),
		city Nullable(String),
		properties String,
		duration Nullable(UInt64),
		screen_views Nullable(UInt32),
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (project_id, toDate(created_at), name, id)
	SETTINGS index_granularity = 8192
	`},
	{profilesTable, `
	CREATE TABLE IF NOT EXISTS profiles (
		id String,
		project_id LowCardinality(String),
		first_name String,
		last_name String,
		email String,
		avatar String,
		properties String,
		first_seen_at DateTime64(3, 'UTC'),
		last_seen_at DateTime64(3, 'UTC'),
		created_at DateTime64(6, 'UTC')
	) ENGINE = MergeTree
	ORDER BY (project_id, id, created_at)
	`},
	{sessionsTable, `
	CREATE TABLE IF NOT EXISTS sessions (
		id String,
		project_id LowCardinality(String),
		device_id String,
		profile_id String,
		created_at DateTime64(3, 'UTC'),
		ended_at DateTime64(3, 'UTC'),
		duration UInt64,
		screen_views UInt32,
		event_count UInt32,
		is_bounce Bool,
		entry_path String,
		exit_path String,
		device LowCardinality(String),
		browser Nullable(String),
		os Nullable(String),
		country Nullable(String),
		region Nullable(String),
		city Nullable(String),
		referrer Nullable(String),
		referrer_name Nullable(String),
		referrer_type LowCardinality(String),
		utm_source Nullable(String),
		utm_medium Nullable(String),
		utm_campaign Nullable(String)
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(created_at)
	ORDER BY (project_id, id)
	`},
	{rollupsTable, `
	CREATE TABLE IF NOT EXISTS event_rollups_daily (
		project_id LowCardinality(String),
		date Date,
		devices AggregateFunction(uniq, String),
		sessions AggregateFunction(uniq, String),
		screen_views UInt64,
		session_count UInt64,
		duration_sum UInt64,
		bounces UInt64,
		version UInt64
	) ENGINE = ReplacingMergeTree(version)
	ORDER BY (project_id, date)
	`},
}

// InitSchema creates every table that does not exist yet
func (r *Repository) InitSchema(ctx context.Context) error {
	for _, t := range schema {
		if err := r.client.Conn().Exec(ctx, t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.table, err)
		}
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}
