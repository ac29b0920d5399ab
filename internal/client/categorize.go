package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/temperature-heatmap-service/internal/validation"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (datasetFetchErrorsTotal).
const (
	ErrorCategoryTimeout        ErrorCategory = "timeout"
	ErrorCategoryNetwork        ErrorCategory = "network"
	ErrorCategoryInvalidSource  ErrorCategory = "invalid_source"
	ErrorCategorySourceNotFound ErrorCategory = "source_not_found"
	ErrorCategoryRateLimited    ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx    ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen    ErrorCategory = "circuit_open"
	ErrorCategoryParsing        ErrorCategory = "parsing"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryCache          ErrorCategory = "cache"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrInvalidSource):
		return ErrorCategoryInvalidSource
	case errors.Is(err, ErrSourceNotFound):
		return ErrorCategorySourceNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrDatasetTooLarge):
		return ErrorCategoryValidation
	case errors.Is(err, validation.ErrNoRecords),
		errors.Is(err, validation.ErrMonthOutOfRange),
		errors.Is(err, validation.ErrInvalidYear),
		errors.Is(err, validation.ErrNonFiniteTemperature):
		return ErrorCategoryValidation
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded") {
		return ErrorCategoryTimeout
	}

	if strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") {
		return ErrorCategoryNetwork
	}

	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}

	if strings.Contains(errStr, "cache") {
		return ErrorCategoryCache
	}

	return ErrorCategoryUnknown
}
