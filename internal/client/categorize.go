package client

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as the weatherApiErrorsTotal category label.
const (
	ErrorCategoryTimeout  ErrorCategory = "timeout"
	ErrorCategoryNetwork  ErrorCategory = "network"
	ErrorCategoryParsing  ErrorCategory = "parsing"
	ErrorCategoryCanceled ErrorCategory = "canceled"
	ErrorCategoryUnknown  ErrorCategory = "unknown"
)

// CategorizeError maps an outbound call error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorCategoryTimeout
	}

	if errors.Is(err, ErrInvalidResponse) {
		return ErrorCategoryParsing
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return ErrorCategoryNetwork
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}

	return ErrorCategoryUnknown
}
