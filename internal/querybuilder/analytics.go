package querybuilder

import (
	"fmt"
	"strings"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// Funnel builds a query returning one row with columns step_0..step_{n-1}.
// Each step CTE holds the first occurrence per device of that step's event.
// Step k counts devices whose first occurrences are strictly increasing from
// step 0 through step k. Unmatched joined rows carry the zero timestamp and
// so never satisfy the ordering.
func Funnel(table string, base Expr, steps []string) Expr {
	b := New()
	for i, step := range steps {
		body := New().
			Select("device_id", "min(created_at) AS ts").
			From(table, "").
			WhereExpr(base).
			Where("name = ?", step).
			GroupBy("device_id").
			Build()
		b.With(stepName(i), body)
	}

	columns := []string{"count() AS step_0"}
	conds := make([]string, 0, len(steps))
	for i := 1; i < len(steps); i++ {
		conds = append(conds, fmt.Sprintf("s%d.ts > s%d.ts", i, i-1))
		columns = append(columns, fmt.Sprintf("countIf(%s) AS %s", strings.Join(conds, " AND "), stepName(i)))
	}

	b.Select(columns...).From(stepName(0), "s0")
	for i := 1; i < len(steps); i++ {
		b.LeftJoin(stepName(i), fmt.Sprintf("s%d", i), fmt.Sprintf("s%d.device_id = s0.device_id", i))
	}

	return b.Build()
}

func stepName(i int) string {
	return fmt.Sprintf("step_%d", i)
}

// Retention builds a query returning (cohort_date, period, cohort_size,
// retained) rows. A device's cohort is the first bucket it was active in
// within the base range; period is the number of whole units between the
// cohort bucket and each later activity bucket.
func Retention(table string, base Expr, unit domain.Interval) (Expr, error) {
	bucket, err := bucketExpr(unit, "created_at")
	if err != nil {
		return Expr{}, err
	}

	activity := New().
		Select("DISTINCT device_id", bucket+" AS bucket").
		From(table, "").
		WhereExpr(base).
		Build()
	cohorts := New().
		Select("device_id", "min(bucket) AS cohort").
		From("activity", "").
		GroupBy("device_id").
		Build()
	sizes := New().
		Select("cohort", "count() AS size").
		From("cohorts", "").
		GroupBy("cohort").
		Build()

	return New().
		With("activity", activity).
		With("cohorts", cohorts).
		With("cohort_sizes", sizes).
		Select(
			"c.cohort AS cohort_date",
			fmt.Sprintf("toUInt32(dateDiff('%s', c.cohort, a.bucket)) AS period", unit),
			"any(s.size) AS cohort_size",
			"uniqExact(a.device_id) AS retained",
		).
		From("activity", "a").
		InnerJoin("cohorts", "c", "c.device_id = a.device_id").
		InnerJoin("cohort_sizes", "s", "s.cohort = c.cohort").
		GroupBy("cohort_date", "period").
		OrderBy("cohort_date", "period").
		Build(), nil
}

// bucketExpr truncates a timestamp column to the start of its interval.
// Weeks start on Monday.
func bucketExpr(unit domain.Interval, column string) (string, error) {
	switch unit {
	case domain.IntervalHour:
		return fmt.Sprintf("toStartOfHour(%s)", column), nil
	case domain.IntervalDay:
		return fmt.Sprintf("toDate(%s)", column), nil
	case domain.IntervalWeek:
		return fmt.Sprintf("toStartOfWeek(%s, 1)", column), nil
	case domain.IntervalMonth:
		return fmt.Sprintf("toStartOfMonth(%s)", column), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidInterval, unit)
}

// Bucket exposes the interval truncation for callers building series queries.
func Bucket(unit domain.Interval, column string) (string, error) {
	return bucketExpr(unit, column)
}
