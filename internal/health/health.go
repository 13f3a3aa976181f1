// Package health evaluates service health from dependency pings and a
// sliding window of upstream call outcomes.
package health

import (
	"net/http"
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordUpstreamSuccess records a successful upstream weather or geocoding call.
func RecordUpstreamSuccess() {
	defaultTracker.RecordSuccess()
}

// RecordUpstreamError records a failed upstream call.
func RecordUpstreamError() {
	defaultTracker.RecordError()
}

// UpstreamErrorRate returns (errorCount, totalCount) within the window.
func UpstreamErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of upstream outcome timestamps.
type Tracker struct {
	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
}

func (t *Tracker) RecordSuccess() {
	t.recordOutcome(&t.successTimes)
}

func (t *Tracker) RecordError() {
	t.recordOutcome(&t.errorTimes)
}

// ErrorRate returns (errorCount, totalCount) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	errCount := countInWindow(t.errorTimes, cutoff)
	successCount := countInWindow(t.successTimes, cutoff)
	return errCount, errCount + successCount
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked removes timestamps older than 5 minutes. Must be called with
// the mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-5 * time.Minute)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
}

// Checker computes the overall health report. Pings are optional; a nil ping
// skips that dependency.
type Checker struct {
	Service           string
	Version           string
	Window            time.Duration
	ErrorThresholdPct int
	DBPing            func() error
	CachePing         func() error
}

// Report is the result of a health evaluation.
type Report struct {
	Status     string
	StatusCode int
	Checks     map[string]string
}

// Evaluate checks dependencies in priority order. A failed database ping is
// fatal; an upstream error-rate breach marks the service degraded; a failed
// cache ping is reported but does not fail the check since every cache path
// degrades to a direct upstream call.
func (c *Checker) Evaluate() Report {
	checks := make(map[string]string)
	status := "healthy"
	statusCode := http.StatusOK

	if c.DBPing != nil {
		if err := c.DBPing(); err != nil {
			checks["database"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
	}

	checks["weatherApi"] = "healthy"
	window := c.Window
	if window <= 0 {
		window = time.Minute
	}
	if c.ErrorThresholdPct > 0 {
		errors, total := UpstreamErrorRate(window)
		if total > 0 && errors*100/total >= c.ErrorThresholdPct {
			checks["weatherApi"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	if c.CachePing != nil {
		if err := c.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			if status == "healthy" {
				status = "degraded-cache"
			}
		} else {
			checks["cache"] = "healthy"
		}
	}

	return Report{Status: status, StatusCode: statusCode, Checks: checks}
}
