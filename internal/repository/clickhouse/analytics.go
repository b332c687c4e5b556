package clickhouse

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/filter"
	qb "github.com/BarkinBalci/product-analytics-pipeline/internal/querybuilder"
)

const (
	eventAggregates = "uniq(device_id), uniq(session_id), countIf(name = 'screen_view')"
	// Empty aggregates would yield NaN.
	sessionAggregates = "if(count() = 0, 0, avg(duration)), if(count() = 0, 0, countIf(is_bounce) / count() * 100)"
	rollupAggregates  = "uniqMerge(devices), uniqMerge(sessions), sum(screen_views), " +
		"if(sum(session_count) = 0, 0, sum(duration_sum) / sum(session_count)), " +
		"if(sum(session_count) = 0, 0, sum(bounces) / sum(session_count) * 100)"
)

// eventScope restricts events to a project and range, plus any filters.
func eventScope(projectID string, r domain.DateRange, filters []domain.Filter) (qb.Expr, error) {
	sql, args, err := filter.Compile(filters)
	if err != nil {
		return qb.Expr{}, err
	}
	return qb.And(
		qb.E("project_id = ? AND created_at >= ? AND created_at < ?", projectID, r.Start, r.End),
		qb.E(sql, args...),
	), nil
}

// Metrics computes the aggregates from the raw events and sessions tables.
// With filters, session aggregates only consider sessions that have at
// least one matching event.
func (r *Repository) Metrics(ctx context.Context, q domain.MetricsQuery) (*domain.MetricsResult, error) {
	scope, err := eventScope(q.ProjectID, q.Range, q.Filters)
	if err != nil {
		return nil, err
	}

	sessionQuery := func() *qb.Builder {
		b := qb.New().
			From(sessionsTable+" FINAL", "").
			Where("project_id = ? AND created_at >= ? AND created_at < ?", q.ProjectID, q.Range.Start, q.Range.End)
		if len(q.Filters) > 0 {
			b.Where("id IN (SELECT session_id FROM events WHERE "+scope.SQL+")", scope.Args...)
		}
		return b
	}
	eventQuery := func() *qb.Builder {
		return qb.New().From(eventsTable+" FINAL", "").WhereExpr(scope)
	}

	result := &domain.MetricsResult{}
	t := &result.Totals

	row := eventQuery().Select(eventAggregates).Build()
	if err := r.client.Conn().QueryRow(ctx, row.SQL, row.Args...).Scan(&t.UniqueDevices, &t.UniqueSessions, &t.ScreenViews); err != nil {
		return nil, fmt.Errorf("failed to query event metrics: %w", err)
	}

	row = sessionQuery().Select(sessionAggregates).Build()
	if err := r.client.Conn().QueryRow(ctx, row.SQL, row.Args...).Scan(&t.AvgSessionDuration, &t.BounceRate); err != nil {
		return nil, fmt.Errorf("failed to query session metrics: %w", err)
	}

	if q.Interval == "" {
		return result, nil
	}

	eventBucket, err := qb.Bucket(q.Interval, "created_at")
	if err != nil {
		return nil, err
	}

	series := newSeries()
	events := eventQuery().Select(eventBucket+" AS bucket", eventAggregates).GroupBy("bucket").OrderBy("bucket").Build()
	err = r.queryRows(ctx, "event metrics series", events, func(rows driver.Rows) error {
		var bucket time.Time
		var m domain.Metrics
		if err := rows.Scan(&bucket, &m.UniqueDevices, &m.UniqueSessions, &m.ScreenViews); err != nil {
			return err
		}
		p := series.at(bucket)
		p.UniqueDevices, p.UniqueSessions, p.ScreenViews = m.UniqueDevices, m.UniqueSessions, m.ScreenViews
		return nil
	})
	if err != nil {
		return nil, err
	}

	sessions := sessionQuery().Select(eventBucket+" AS bucket", sessionAggregates).GroupBy("bucket").OrderBy("bucket").Build()
	err = r.queryRows(ctx, "session metrics series", sessions, func(rows driver.Rows) error {
		var bucket time.Time
		var avg, bounce float64
		if err := rows.Scan(&bucket, &avg, &bounce); err != nil {
			return err
		}
		p := series.at(bucket)
		p.AvgSessionDuration, p.BounceRate = avg, bounce
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Series = series.points()
	return result, nil
}

// RollupMetrics answers an unfiltered whole-day query from the daily rollup
// table. Hourly series are not available from rollups.
func (r *Repository) RollupMetrics(ctx context.Context, q domain.MetricsQuery) (*domain.MetricsResult, error) {
	query := func() *qb.Builder {
		return qb.New().
			From(rollupsTable+" FINAL", "").
			Where("project_id = ? AND date >= toDate(?) AND date < toDate(?)", q.ProjectID, q.Range.Start, q.Range.End)
	}

	result := &domain.MetricsResult{FromRollup: true}
	t := &result.Totals

	row := query().Select(rollupAggregates).Build()
	err := r.client.Conn().QueryRow(ctx, row.SQL, row.Args...).
		Scan(&t.UniqueDevices, &t.UniqueSessions, &t.ScreenViews, &t.AvgSessionDuration, &t.BounceRate)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollup metrics: %w", err)
	}

	if q.Interval == "" {
		return result, nil
	}
	if q.Interval == domain.IntervalHour {
		return nil, fmt.Errorf("%w: hourly series need raw events", domain.ErrInvalidInterval)
	}

	bucket, err := qb.Bucket(q.Interval, "date")
	if err != nil {
		return nil, err
	}

	series := newSeries()
	rows := query().Select(bucket+" AS bucket", rollupAggregates).GroupBy("bucket").OrderBy("bucket").Build()
	err = r.queryRows(ctx, "rollup metrics series", rows, func(rows driver.Rows) error {
		var at time.Time
		var m domain.Metrics
		if err := rows.Scan(&at, &m.UniqueDevices, &m.UniqueSessions, &m.ScreenViews, &m.AvgSessionDuration, &m.BounceRate); err != nil {
			return err
		}
		series.at(at).Metrics = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Series = series.points()
	return result, nil
}

func (r *Repository) FunnelCounts(ctx context.Context, q domain.FunnelQuery) ([]uint64, error) {
	scope, err := eventScope(q.ProjectID, q.Range, q.Filters)
	if err != nil {
		return nil, err
	}

	query := qb.Funnel(eventsTable, scope, q.Steps)

	counts := make([]uint64, len(q.Steps))
	dest := make([]any, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}

	if err := r.client.Conn().QueryRow(ctx, query.SQL, query.Args...).Scan(dest...); err != nil {
		return nil, fmt.Errorf("failed to query funnel: %w", err)
	}
	return counts, nil
}

func (r *Repository) RetentionCohorts(ctx context.Context, q domain.RetentionQuery) ([]domain.RetentionRow, error) {
	scope, err := eventScope(q.ProjectID, q.Range, q.Filters)
	if err != nil {
		return nil, err
	}

	query, err := qb.Retention(eventsTable, scope, q.Period)
	if err != nil {
		return nil, err
	}

	var out []domain.RetentionRow
	err = r.queryRows(ctx, "retention", query, func(rows driver.Rows) error {
		var row domain.RetentionRow
		if err := rows.Scan(&row.CohortDate, &row.Period, &row.CohortSize, &row.Retained); err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// series collects points keyed by bucket start.
type series struct {
	index map[int64]int
	list  []domain.MetricsPoint
}

func newSeries() *series {
	return &series{index: map[int64]int{}}
}

func (s *series) at(bucket time.Time) *domain.MetricsPoint {
	key := bucket.Unix()
	if i, ok := s.index[key]; ok {
		return &s.list[i]
	}
	s.index[key] = len(s.list)
	s.list = append(s.list, domain.MetricsPoint{Bucket: bucket.UTC()})
	return &s.list[len(s.list)-1]
}

// points returns the collected points ordered by bucket.
func (s *series) points() []domain.MetricsPoint {
	slices.SortFunc(s.list, func(a, b domain.MetricsPoint) int {
		return a.Bucket.Compare(b.Bucket)
	})
	return s.list
}
