package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket defines rate limit parameters.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

// Log is an in-memory sliding-window event log per key. A single mutex
// serializes every read, prune and append, so concurrent callers recording
// against the same key never lose updates.
type Log struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// New creates an empty log using the wall clock.
func New() *Log {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty log that reads time from now.
func NewWithClock(now func() time.Time) *Log {
	return &Log{hits: make(map[string][]time.Time), now: now}
}

// Record appends the current time for key, drops entries older than
// now-window and returns how many entries remain, the new one included.
func (l *Log) Record(key string, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := prune(l.hits[key], now.Add(-window))
	pruned = append(pruned, now)
	l.hits[key] = pruned
	return len(pruned)
}

// Allow checks if an event identified by key is within the limit for the
// given bucket. Rejected events are not recorded.
func (l *Log) Allow(key string, bucket Bucket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := prune(l.hits[key], now.Add(-bucket.Window))
	if len(pruned) >= bucket.MaxRequests {
		l.hits[key] = pruned
		return false
	}
	l.hits[key] = append(pruned, now)
	return true
}

// Count returns the number of entries for key inside the window without
// recording anything.
func (l *Log) Count(key string, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	pruned := prune(l.hits[key], l.now().Add(-window))
	l.hits[key] = pruned
	return len(pruned)
}

// Sweep removes keys whose newest entry is older than window and returns how
// many keys were dropped.
func (l *Log) Sweep(window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-window)
	dropped := 0
	for key, times := range l.hits {
		if len(times) == 0 || times[len(times)-1].Before(cutoff) {
			delete(l.hits, key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of tracked keys.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// CheckBucket writes a 429 JSON response if the client is over bucket under
// bucketName. Returns true if the request was rejected.
func (l *Log) CheckBucket(w http.ResponseWriter, r *http.Request, bucketName string, bucket Bucket) bool {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if l.Allow(bucketName+":"+ip, bucket) {
		return false
	}

	retry := int(bucket.Window.Seconds())
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]any{
		"error":               "Rate limited",
		"retry_after_seconds": retry,
	})
	return true
}

// prune keeps entries at or after cutoff, reusing the backing array.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
