package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/temperature-heatmap-service/internal/validation"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	// name: test case description; err: input error; want: expected ErrorCategory.
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"invalid source", ErrInvalidSource, ErrorCategoryInvalidSource},
		{"wrapped not found", fmt.Errorf("load: %w", ErrSourceNotFound), ErrorCategorySourceNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream failure", ErrUpstreamFailure, ErrorCategoryUpstream5xx},
		{"circuit open", fmt.Errorf("%w: src", ErrCircuitOpen), ErrorCategoryCircuitOpen},
		{"malformed record", ErrMalformedRecord, ErrorCategoryValidation},
		{"dataset too large", fmt.Errorf("%w: more than 10 bytes", ErrDatasetTooLarge), ErrorCategoryValidation},
		{"month out of range", fmt.Errorf("record 3: %w", validation.ErrMonthOutOfRange), ErrorCategoryValidation},
		{"timeout in message", fmt.Errorf("request timeout: %w", errors.New("i/o")), ErrorCategoryTimeout},
		{"network in message", errors.New("connection refused"), ErrorCategoryNetwork},
		{"parse in message", errors.New("parse response: invalid json"), ErrorCategoryParsing},
		{"cache in message", errors.New("cache get failed"), ErrorCategoryCache},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
