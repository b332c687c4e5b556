package service

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/BarkinBalci/product-analytics-pipeline/internal/domain"
)

var validationErrors = []error{
	domain.ErrInvalidOperator,
	domain.ErrInvalidField,
	domain.ErrInvalidValue,
	domain.ErrTooFewFunnelSteps,
	domain.ErrInvalidDateRange,
	domain.ErrInvalidInterval,
	domain.ErrUnknownEventKind,
	domain.ErrMissingField,
}

// IsValidation reports whether err was caused by bad input rather than by a
// failing dependency.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return true
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
