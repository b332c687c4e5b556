package clickhouse

import (
	"context"
	"fmt"
	"time"
)

// refreshRollup recomputes one (project, day) row from the raw tables. The
// higher version replaces any earlier row for the same key.
const refreshRollup = `
	INSERT INTO event_rollups_daily
	SELECT ?, toDate(?), e.devices, e.sessions, e.screen_views,
	       s.session_count, s.duration_sum, s.bounces, ?
	FROM (
		SELECT uniqState(device_id) AS devices,
		       uniqState(session_id) AS sessions,
		       countIf(name = 'screen_view') AS screen_views
		FROM events FINAL
		WHERE project_id = ? AND created_at >= ? AND created_at < ?
	) AS e
	CROSS JOIN (
		SELECT count() AS session_count,
		       sum(duration) AS duration_sum,
		       countIf(is_bounce) AS bounces
		FROM sessions FINAL
		WHERE project_id = ? AND created_at >= ? AND created_at < ?
	) AS s`

func (r *Repository) RefreshDailyRollup(ctx context.Context, projectID string, day time.Time) error {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	err := r.client.Conn().Exec(ctx, refreshRollup,
		projectID, start, uint64(r.now().UnixNano()),
		projectID, start, end,
		projectID, start, end,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh rollup for %s: %w", start.Format(time.DateOnly), err)
	}
	return nil
}
