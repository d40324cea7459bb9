package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including wrapped errors and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"wrapped deadline", fmt.Errorf("weather request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryCanceled},
		{"net timeout", &url.Error{Op: "Get", URL: "https://x", Err: timeoutError{}}, ErrorCategoryTimeout},
		{"dial error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, ErrorCategoryNetwork},
		{"dns error", &net.DNSError{Err: "no such host", Name: "x"}, ErrorCategoryNetwork},
		{"invalid response", fmt.Errorf("%w: not json", ErrInvalidResponse), ErrorCategoryParsing},
		{"connection in message", errors.New("connection reset by peer"), ErrorCategoryNetwork},
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
