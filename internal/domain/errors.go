package domain

import "errors"

// Validation errors. Requests failing with these are rejected synchronously
// and never enqueued.
var (
	ErrInvalidOperator   = errors.New("invalid filter operator")
	ErrInvalidField      = errors.New("invalid filter field")
	ErrInvalidValue      = errors.New("invalid filter value")
	ErrTooFewFunnelSteps = errors.New("funnel requires at least 2 steps")
	ErrInvalidDateRange  = errors.New("start date must not be after end date")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrUnknownEventKind  = errors.New("unknown event kind")
	ErrMissingField      = errors.New("missing required field")
)
