// Package traffic keeps a sliding window of weather provider outcomes so /health can
// report a failing provider.
package traffic

import (
	"sync"
	"time"
)

// Tracker records success and error timestamps and reports the error rate over a fixed
// window. The zero value is not usable; call NewTracker.
type Tracker struct {
	mu         sync.Mutex
	window     time.Duration
	errorPct   int
	now        func() time.Time
	successes  []time.Time
	errorTimes []time.Time
}

// NewTracker returns a tracker that considers outcomes from the last window and reports
// degraded once errors reach errorPct percent of them.
func NewTracker(window time.Duration, errorPct int) *Tracker {
	return &Tracker{window: window, errorPct: errorPct, now: time.Now}
}

func (t *Tracker) RecordSuccess() { t.record(&t.successes) }

func (t *Tracker) RecordError() { t.record(&t.errorTimes) }

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// ErrorRate returns the error and total counts within the window.
func (t *Tracker) ErrorRate() (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	return len(t.errorTimes), len(t.errorTimes) + len(t.successes)
}

// Degraded reports whether the windowed error rate is at or above the threshold. An empty
// window is not degraded.
func (t *Tracker) Degraded() bool {
	errors, total := t.ErrorRate()
	if total == 0 || t.errorPct <= 0 {
		return false
	}
	return errors*100 >= t.errorPct*total
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes = nil
	t.errorTimes = nil
}

// pruneLocked drops timestamps older than the window. Slices are in append order, so
// expired entries are a prefix. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successes)
	prune(&t.errorTimes)
}
