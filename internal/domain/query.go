package domain

import (
	"fmt"
	"slices"
	"time"
)

// Interval is a time-bucket granularity for series and retention periods.
type Interval string

const (
	IntervalHour  Interval = "hour"
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// Valid reports whether the interval is known. Hour is not a valid retention
// period; callers check that separately.
func (i Interval) Valid() bool {
	switch i {
	case IntervalHour, IntervalDay, IntervalWeek, IntervalMonth:
		return true
	}
	return false
}

// DateRange is a half-open [Start, End) range in UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds the range covering the inclusive calendar days from
// start to end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return DateRange{}, fmt.Errorf("%w: %s > %s", ErrInvalidDateRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return DateRange{Start: start, End: end.AddDate(0, 0, 1)}, nil
}

// WholeDays reports whether both bounds sit on UTC midnight.
func (r DateRange) WholeDays() bool {
	return r.Start.Equal(truncateDay(r.Start)) && r.End.Equal(truncateDay(r.End))
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type MetricsQuery struct {
	ProjectID string
	Range     DateRange
	Interval  Interval
	Filters   []Filter
}

// Metrics are the headline aggregates. Rates are percentages and durations
// are milliseconds.
type Metrics struct {
	UniqueDevices      uint64  `json:"unique_devices"`
	UniqueSessions     uint64  `json:"unique_sessions"`
	ScreenViews        uint64  `json:"screen_views"`
	AvgSessionDuration float64 `json:"avg_session_duration"`
	BounceRate         float64 `json:"bounce_rate"`
}

type MetricsPoint struct {
	Bucket time.Time `json:"bucket"`
	Metrics
}

type MetricsResult struct {
	Totals     Metrics        `json:"totals"`
	Series     []MetricsPoint `json:"series,omitempty"`
	FromRollup bool           `json:"from_rollup"`
}

// Clone returns a copy that shares no memory with r.
func (r *MetricsResult) Clone() *MetricsResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Series = slices.Clone(r.Series)
	return &out
}

type FunnelQuery struct {
	ProjectID string
	Range     DateRange
	Steps     []string
	Filters   []Filter
}

type FunnelStep struct {
	Name       string  `json:"name"`
	Count      uint64  `json:"count"`
	Conversion float64 `json:"conversion"`
}

type FunnelResult struct {
	Steps []FunnelStep `json:"steps"`
}

type RetentionQuery struct {
	ProjectID string
	Range     DateRange
	Period    Interval
	Filters   []Filter
}

type RetentionRow struct {
	CohortDate time.Time `json:"cohort_date"`
	Period     uint32    `json:"period"`
	CohortSize uint64    `json:"cohort_size"`
	Retained   uint64    `json:"retained"`
	Rate       float64   `json:"rate"`
}

type RetentionResult struct {
	Rows []RetentionRow `json:"rows"`
}
