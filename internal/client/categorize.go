package client

import (
	"context"
	"errors"
	"strings"

	"weatherhub/internal/svcerr"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric and log labels.
const (
	ErrorCategoryTimeout      ErrorCategory = "timeout"
	ErrorCategoryNetwork      ErrorCategory = "network"
	ErrorCategoryInvalidInput ErrorCategory = "invalid_input"
	ErrorCategoryNotFound     ErrorCategory = "not_found"
	ErrorCategoryUpstream     ErrorCategory = "upstream"
	ErrorCategoryConflict     ErrorCategory = "conflict"
	ErrorCategoryStorage      ErrorCategory = "storage"
	ErrorCategoryParsing      ErrorCategory = "parsing"
	ErrorCategoryUnknown      ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	switch {
	case errors.Is(err, svcerr.ErrInvalidInput):
		return ErrorCategoryInvalidInput
	case errors.Is(err, svcerr.ErrNotFound):
		return ErrorCategoryNotFound
	case errors.Is(err, svcerr.ErrConflict):
		return ErrorCategoryConflict
	case errors.Is(err, svcerr.ErrStorageFailure):
		return ErrorCategoryStorage
	case errors.Is(err, svcerr.ErrUpstreamUnavailable):
		return ErrorCategoryUpstream
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

	return ErrorCategoryUnknown
}
