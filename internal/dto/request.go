package dto

import (
	"fmt"
	"time"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

// TrackRequest is the ingress envelope: a type tag and its payload. The
// payload is validated per type by the event service.
type TrackRequest struct {
	Type    domain.EventKind `json:"type" binding:"required" example:"track"`
	Payload domain.RawEvent  `json:"payload"`
}

// RawEvent returns the payload tagged with the envelope type.
func (r *TrackRequest) RawEvent() domain.RawEvent {
	raw := r.Payload
	raw.Kind = r.Type
	return raw
}

// TrackBulkRequest carries up to 1000 payloads for one project.
type TrackBulkRequest struct {
	Events []TrackRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// InsightsScope is shared by every read request. Dates are inclusive
// calendar days in UTC.
type InsightsScope struct {
	ProjectID string          `json:"project_id" binding:"required" example:"proj_123"`
	StartDate string          `json:"start_date" binding:"required,datetime=2006-01-02" example:"2026-03-01"`
	EndDate   string          `json:"end_date" binding:"required,datetime=2006-01-02" example:"2026-03-07"`
	Filters   []domain.Filter `json:"filters,omitempty"`
}

// Range converts the scope's dates into a half-open range.
func (s *InsightsScope) Range() (domain.DateRange, error) {
	start, err := time.Parse(time.DateOnly, s.StartDate)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("%w: start_date %q", domain.ErrInvalidDateRange, s.StartDate)
	}
	end, err := time.Parse(time.DateOnly, s.EndDate)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("%w: end_date %q", domain.ErrInvalidDateRange, s.EndDate)
	}
	return domain.NewDateRange(start, end)
}

type MetricsRequest struct {
	InsightsScope
	Interval domain.Interval `json:"interval,omitempty" binding:"omitempty,oneof=hour day week month" example:"day"`
}

type FunnelRequest struct {
	InsightsScope
	Steps []string `json:"steps" binding:"required" example:"view,signup,purchase"`
}

type RetentionRequest struct {
	InsightsScope
	Period domain.Interval `json:"period,omitempty" binding:"omitempty,oneof=day week month" example:"week"`
}
