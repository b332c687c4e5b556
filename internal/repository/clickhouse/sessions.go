package clickhouse

import (
	"context"
	"fmt"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// aggregateSession samples representative fields with any(), which skips
// NULLs. session_end rows are written by the aggregation itself and are
// excluded so a re-run sees the same members.
const aggregateSession = `
	SELECT
		any(device_id),
		anyIf(profile_id, profile_id != ''),
		min(created_at),
		max(created_at),
		toUInt32(countIf(name = 'screen_view')),
		toUInt32(count()),
		argMin(path, created_at),
		argMax(path, created_at),
		any(device),
		any(browser),
		any(os),
		any(country),
		any(region),
		any(city),
		any(referrer),
		any(referrer_name),
		any(referrer_type),
		any(utm_source),
		any(utm_medium),
		any(utm_campaign)
	FROM events FINAL
	WHERE project_id = ? AND session_id = ? AND name != 'session_end'
	GROUP BY session_id`

func (r *Repository) AggregateSession(ctx context.Context, projectID, sessionID string) (*domain.SessionAggregate, error) {
	rows, err := r.client.Conn().Query(ctx, aggregateSession, projectID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session: %w", err)
	}
	defer r.closeRows(rows, "session aggregate")

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating session aggregate: %w", err)
		}
		return nil, nil
	}

	agg := &domain.SessionAggregate{}
	s := &agg.Session
	s.ID, s.ProjectID = sessionID, projectID
	err = rows.Scan(
		&s.DeviceID, &s.ProfileID, &s.CreatedAt, &s.EndedAt,
		&s.ScreenViews, &s.EventCount, &s.EntryPath, &s.ExitPath,
		&s.Device, &s.Browser, &s.OS, &s.Country, &s.Region, &s.City,
		&s.Referrer, &s.ReferrerName, &s.ReferrerType,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session aggregate: %w", err)
	}
	agg.LastEventAt = s.EndedAt

	return agg, nil
}

func (r *Repository) InsertSession(ctx context.Context, session *domain.Session) error {
	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO sessions")
	if err != nil {
		return fmt.Errorf("failed to prepare session insert: %w", err)
	}
	if err := batch.AppendStruct(session); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append session: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}
