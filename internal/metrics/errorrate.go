package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory buckets failures by the collaborator that produced them.
type ErrorCategory string

const (
	ErrorCategoryDatabase  ErrorCategory = "database"
	ErrorCategoryTransport ErrorCategory = "transport"
	ErrorCategoryLLM       ErrorCategory = "llm"
	ErrorCategoryCalendar  ErrorCategory = "calendar"
	ErrorCategoryExport    ErrorCategory = "export"
	ErrorCategoryInternal  ErrorCategory = "internal"
)

// ErrorRateTracker tracks per-category error rates over a sliding window.
// The health endpoint reports its snapshot so a single failing
// collaborator is visible without log digging.
type ErrorRateTracker struct {
	windowDur   time.Duration
	bucketCount int

	mu       sync.RWMutex
	counters map[ErrorCategory]*slidingWindow

	totalErrors   atomic.Int64
	totalRequests atomic.Int64
}

// NewErrorRateTracker creates a tracker with a one-minute window.
func NewErrorRateTracker() *ErrorRateTracker {
	return &ErrorRateTracker{
		windowDur:   time.Minute,
		bucketCount: 60,
		counters:    make(map[ErrorCategory]*slidingWindow),
	}
}

// RecordError records an error in the given category.
func (t *ErrorRateTracker) RecordError(category ErrorCategory) {
	t.totalErrors.Add(1)
	t.window(category).increment()
}

// RecordRequest records a processed request, for the error percentage.
func (t *ErrorRateTracker) RecordRequest() {
	t.totalRequests.Add(1)
}

// Rate returns the current errors-per-second rate for a category.
func (t *ErrorRateTracker) Rate(category ErrorCategory) float64 {
	t.mu.RLock()
	w, ok := t.counters[category]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return float64(w.count()) / t.windowDur.Seconds()
}

// Count returns the error count in the current window for a category.
func (t *ErrorRateTracker) Count(category ErrorCategory) int64 {
	t.mu.RLock()
	w, ok := t.counters[category]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	return w.count()
}

// ErrorPercentage returns the share of requests that produced an error,
// over the process lifetime. Zero when nothing has been recorded.
func (t *ErrorRateTracker) ErrorPercentage() float64 {
	requests := t.totalRequests.Load()
	if requests == 0 {
		return 0
	}
	return float64(t.totalErrors.Load()) / float64(requests) * 100
}

// Snapshot returns the windowed error count per category.
func (t *ErrorRateTracker) Snapshot() map[ErrorCategory]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[ErrorCategory]int64, len(t.counters))
	for category, w := range t.counters {
		out[category] = w.count()
	}
	return out
}

func (t *ErrorRateTracker) window(category ErrorCategory) *slidingWindow {
	t.mu.RLock()
	w, ok := t.counters[category]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.counters[category]; ok {
		return w
	}
	w = newSlidingWindow(t.windowDur, t.bucketCount)
	t.counters[category] = w
	return w
}

// slidingWindow is a time-based ring of counters.
type slidingWindow struct {
	mu           sync.Mutex
	buckets      []int64
	bucketDur    time.Duration
	currentIndex int
	lastUpdate   time.Time
}

func newSlidingWindow(windowDur time.Duration, bucketCount int) *slidingWindow {
	return &slidingWindow{
		buckets:    make([]int64, bucketCount),
		bucketDur:  windowDur / time.Duration(bucketCount),
		lastUpdate: time.Now(),
	}
}

func (w *slidingWindow) increment() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotate()
	w.buckets[w.currentIndex]++
}

func (w *slidingWindow) count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rotate()

	var total int64
	for _, c := range w.buckets {
		total += c
	}
	return total
}

// rotate advances the ring, clearing buckets that have expired.
func (w *slidingWindow) rotate() {
	now := time.Now()
	passed := int(now.Sub(w.lastUpdate) / w.bucketDur)
	if passed == 0 {
		return
	}
	if passed > len(w.buckets) {
		passed = len(w.buckets)
	}
	for i := 0; i < passed; i++ {
		w.currentIndex = (w.currentIndex + 1) % len(w.buckets)
		w.buckets[w.currentIndex] = 0
	}
	w.lastUpdate = now
}
