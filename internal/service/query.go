package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/filter"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/metrics"
	"github.com/BarkinBalci/product-analytics-pipeline/internal/repository"
)

// QueryService runs metrics, funnel and retention queries. Metrics results
// are cached for a short TTL.
type QueryService struct {
	repo  repository.AnalyticsStore
	cache *ristretto.Cache[string, *domain.MetricsResult]
	ttl   time.Duration
	log   *zap.Logger
}

// NewMetricsCache builds the cache used for metrics results. Every entry has
// a cost of one, so maxCost bounds the number of cached results.
func NewMetricsCache(maxCost int64) (*ristretto.Cache[string, *domain.MetricsResult], error) {
	return ristretto.NewCache(&ristretto.Config[string, *domain.MetricsResult]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
		// Cost is the entry count, not memory.
		IgnoreInternalCost: true,
	})
}

// NewQueryService creates a query service. A nil cache disables caching.
func NewQueryService(repo repository.AnalyticsStore, cache *ristretto.Cache[string, *domain.MetricsResult], ttl time.Duration, log *zap.Logger) *QueryService {
	return &QueryService{repo: repo, cache: cache, ttl: ttl, log: log}
}

func validateRange(r domain.DateRange) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: date range", domain.ErrMissingField)
	}
	if !r.Start.Before(r.End) {
		return fmt.Errorf("%w: %s >= %s", domain.ErrInvalidDateRange,
			r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

func validateScope(projectID string, r domain.DateRange, filters []domain.Filter) error {
	if projectID == "" {
		return fmt.Errorf("%w: project_id", domain.ErrMissingField)
	}
	if err := validateRange(r); err != nil {
		return err
	}
	return filter.Validate(filters)
}

// Metrics returns totals and an optional series. Queries without filters
// over whole days, bucketed by day or coarser, read the daily rollups.
// Callers own the returned result; the cache keeps its own copy.
func (s *QueryService) Metrics(ctx context.Context, q domain.MetricsQuery) (*domain.MetricsResult, error) {
	if err := validateScope(q.ProjectID, q.Range, q.Filters); err != nil {
		return nil, err
	}
	if q.Interval != "" && !q.Interval.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidInterval, q.Interval)
	}

	key, err := metricsCacheKey(q)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			metrics.QueryCacheHits.WithLabelValues("metrics").Inc()
			return cached.Clone(), nil
		}
		metrics.QueryCacheMisses.WithLabelValues("metrics").Inc()
	}

	var result *domain.MetricsResult
	if len(q.Filters) == 0 && q.Range.WholeDays() && q.Interval != domain.IntervalHour {
		result, err = s.repo.RollupMetrics(ctx, q)
	} else {
		result, err = s.repo.Metrics(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics from repository: %w", err)
	}

	s.log.Debug("Metrics computed",
		zap.String("project_id", q.ProjectID),
		zap.Bool("from_rollup", result.FromRollup),
		zap.Int("series_points", len(result.Series)))

	if s.cache != nil {
		s.cache.SetWithTTL(key, result.Clone(), 1, s.ttl)
	}
	return result, nil
}

// metricsCacheKey identifies a query by project, range, interval and a
// digest of its filters.
func metricsCacheKey(q domain.MetricsQuery) (string, error) {
	filters, err := json.Marshal(q.Filters)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidValue, err)
	}
	digest := sha256.Sum256(filters)
	return fmt.Sprintf("metrics:%s:%d:%d:%s:%s",
		q.ProjectID, q.Range.Start.Unix(), q.Range.End.Unix(), q.Interval,
		hex.EncodeToString(digest[:8])), nil
}

// Funnel counts devices that reach each step in strict order. Conversion is
// relative to step 0, which is always 100.
func (s *QueryService) Funnel(ctx context.Context, q domain.FunnelQuery) (*domain.FunnelResult, error) {
	if len(q.Steps) < 2 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrTooFewFunnelSteps, len(q.Steps))
	}
	for i, step := range q.Steps {
		if step == "" {
			return nil, fmt.Errorf("%w: funnel step %d", domain.ErrMissingField, i)
		}
	}
	if err := validateScope(q.ProjectID, q.Range, q.Filters); err != nil {
		return nil, err
	}

	counts, err := s.repo.FunnelCounts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get funnel from repository: %w", err)
	}
	if len(counts) != len(q.Steps) {
		return nil, fmt.Errorf("funnel returned %d counts for %d steps", len(counts), len(q.Steps))
	}

	result := &domain.FunnelResult{Steps: make([]domain.FunnelStep, len(q.Steps))}
	for i, name := range q.Steps {
		step := domain.FunnelStep{Name: name, Count: counts[i]}
		switch {
		case i == 0:
			step.Conversion = 100
		case counts[0] > 0:
			step.Conversion = float64(counts[i]) / float64(counts[0]) * 100
		}
		result.Steps[i] = step
	}
	return result, nil
}

// Retention groups devices into cohorts by first activity and reports the
// share of each cohort active a whole number of periods later.
func (s *QueryService) Retention(ctx context.Context, q domain.RetentionQuery) (*domain.RetentionResult, error) {
	switch q.Period {
	case "":
		q.Period = domain.IntervalDay
	case domain.IntervalDay, domain.IntervalWeek, domain.IntervalMonth:
	default:
		return nil, fmt.Errorf("%w: retention period %q", domain.ErrInvalidInterval, q.Period)
	}
	if err := validateScope(q.ProjectID, q.Range, q.Filters); err != nil {
		return nil, err
	}

	rows, err := s.repo.RetentionCohorts(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get retention from repository: %w", err)
	}

	for i := range rows {
		if rows[i].CohortSize > 0 {
			rows[i].Rate = float64(rows[i].Retained) / float64(rows[i].CohortSize) * 100
		}
	}
	return &domain.RetentionResult{Rows: rows}, nil
}
