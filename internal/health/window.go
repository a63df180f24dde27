// Package health maintains the sliding-window counters behind the health
// endpoint and the window gauges: how much traffic the rate-limited path is
// seeing, and what share of bundle serves had to fall back to synthetic
// data. The second is the service's data-quality signal: the engine never
// fails, so "degraded" here means "we are answering, but mostly from
// synthesis".
package health

import (
	"sync"
	"time"

	"github.com/avelichko/waterline-monitor/internal/models"
)

var defaultTracker Tracker

// RecordRequest records a request hitting the rate-limited path.
func RecordRequest() { defaultTracker.RecordRequest() }

// RecordDenial records a rate-limit denial (429).
func RecordDenial() { defaultTracker.RecordDenial() }

// RecordServe records a bundle serve with its data-source provenance.
func RecordServe(source string) { defaultTracker.RecordServe(source) }

// RequestCount returns requests (served + denied) within the window.
func RequestCount(window time.Duration) int { return defaultTracker.RequestCount(window) }

// DenialCount returns rate-limit denials within the window.
func DenialCount(window time.Duration) int { return defaultTracker.DenialCount(window) }

// SyntheticSharePct returns the percentage of bundle serves within the
// window that were backed by synthetic data. Zero serves means zero share.
func SyntheticSharePct(window time.Duration) float64 {
	return defaultTracker.SyntheticSharePct(window)
}

// ServeCounts returns serves by source within the window.
func ServeCounts(window time.Duration) map[string]int { return defaultTracker.ServeCounts(window) }

// Reset clears all recorded data. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker keeps per-outcome timestamp windows. Entries older than maxAge are
// pruned on every write so idle processes do not accumulate history.
type Tracker struct {
	mu       sync.Mutex
	requests []time.Time
	denials  []time.Time
	serves   map[string][]time.Time
}

const maxAge = 5 * time.Minute

// RecordRequest records a request hitting the rate-limited path.
func (t *Tracker) RecordRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.requests = append(t.requests, now)
	t.pruneLocked(now)
}

// RecordDenial records a rate-limit denial.
func (t *Tracker) RecordDenial() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	t.denials = append(t.denials, now)
	t.pruneLocked(now)
}

// RecordServe records a bundle serve tagged with its data source.
func (t *Tracker) RecordServe(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.serves == nil {
		t.serves = make(map[string][]time.Time)
	}
	now := time.Now()
	t.serves[source] = append(t.serves[source], now)
	t.pruneLocked(now)
}

// RequestCount returns requests (served + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	return countSince(t.requests, cutoff) + countSince(t.denials, cutoff)
}

// DenialCount returns denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.denials, time.Now().Add(-window))
}

// SyntheticSharePct returns the synthetic percentage of serves in the window.
func (t *Tracker) SyntheticSharePct(window time.Duration) float64 {
	counts := t.ServeCounts(window)
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return 0
	}
	return float64(counts[models.DatasetSynthetic]) * 100 / float64(total)
}

// ServeCounts returns serves by source within the window.
func (t *Tracker) ServeCounts(window time.Duration) map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	counts := make(map[string]int, len(t.serves))
	for source, times := range t.serves {
		if n := countSince(times, cutoff); n > 0 {
			counts[source] = n
		}
	}
	return counts
}

// Reset clears all recorded data.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests = nil
	t.denials = nil
	t.serves = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must hold the mutex.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice []time.Time) []time.Time {
		i := 0
		for ; i < len(slice) && slice[i].Before(cutoff); i++ {
		}
		if i == 0 {
			return slice
		}
		return append(slice[:0], slice[i:]...)
	}
	t.requests = prune(t.requests)
	t.denials = prune(t.denials)
	for source := range t.serves {
		t.serves[source] = prune(t.serves[source])
	}
}
