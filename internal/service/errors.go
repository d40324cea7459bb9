package service

import "fmt"

// ValidationError reports a request that is missing required parameters. Handlers map it
// to 400.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// UpstreamError steps.
const (
	OpCurrent  = "current"
	OpForecast = "forecast"
	OpRecord   = "record"
)

// UpstreamError reports a provider or record store failure at step Op. Handlers map it
// to 500.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
