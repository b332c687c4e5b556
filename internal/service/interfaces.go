package service

import (
	"context"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// EventProcessor accepts authenticated client payloads and enqueues them.
type EventProcessor interface {
	Process(ctx context.Context, raw *domain.RawEvent, meta domain.RequestMeta) (string, error)
	ProcessBulk(ctx context.Context, raws []domain.RawEvent, meta domain.RequestMeta) ([]string, []string, error)
}

// InsightsService answers the read-side analytical queries.
type InsightsService interface {
	Metrics(ctx context.Context, q domain.MetricsQuery) (*domain.MetricsResult, error)
	Funnel(ctx context.Context, q domain.FunnelQuery) (*domain.FunnelResult, error)
	Retention(ctx context.Context, q domain.RetentionQuery) (*domain.RetentionResult, error)
}
