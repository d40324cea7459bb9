// Package lifecycle holds the process-wide draining flag read by /health.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// shutdownAt is the unix-nano time draining began, or 0 while serving.
var shutdownAt atomic.Int64

// SetShuttingDown starts (true) or clears (false) draining. Starting twice keeps the
// first start time.
func SetShuttingDown(v bool) {
	if !v {
		shutdownAt.Store(0)
		return
	}
	shutdownAt.CompareAndSwap(0, time.Now().UnixNano())
}

// IsShuttingDown reports whether the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shutdownAt.Load() != 0
}

// ShutdownElapsed returns how long draining has been under way, or 0 while serving.
func ShutdownElapsed() time.Duration {
	at := shutdownAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}
