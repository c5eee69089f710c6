package detect

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/veil-waf/veil-detect/internal/ratelimit"
)

// LoginObservation is the outcome of recording one login attempt.
type LoginObservation struct {
	Attempted bool
	Count     int
	Window    time.Duration
	Threshold int
}

// Exceeded reports whether the attempt reached the threshold.
func (o LoginObservation) Exceeded() bool {
	return o.Attempted && o.Count >= o.Threshold
}

// BruteForceTracker counts login attempts per source address over a
// sliding window.
type BruteForceTracker struct {
	attempts *ratelimit.Log
}

// NewBruteForceTracker wraps an attempt log. A nil log gets a fresh one.
func NewBruteForceTracker(attempts *ratelimit.Log) *BruteForceTracker {
	if attempts == nil {
		attempts = ratelimit.New()
	}
	return &BruteForceTracker{attempts: attempts}
}

// IsLoginAttempt reports whether req is a POST to a path containing "login".
func IsLoginAttempt(req *Request) bool {
	return strings.EqualFold(strings.TrimSpace(req.HTTPMethod), http.MethodPost) &&
		strings.Contains(strings.ToLower(req.URL), "login")
}

// Observe records req if it is a login attempt and returns the retained
// attempt count for its source address. Appending and pruning happen under
// one lock.
func (t *BruteForceTracker) Observe(req *Request, ip string, window time.Duration, threshold int) LoginObservation {
	obs := LoginObservation{Window: window, Threshold: threshold}
	if !IsLoginAttempt(req) {
		return obs
	}
	obs.Attempted = true
	obs.Count = t.attempts.Record(ip, window)
	return obs
}

// Sweep forgets addresses with no attempts inside window.
func (t *BruteForceTracker) Sweep(window time.Duration) int {
	return t.attempts.Sweep(window)
}

// Tracked returns the number of addresses with retained attempts.
func (t *BruteForceTracker) Tracked() int {
	return t.attempts.Len()
}

// bruteForceDetector reports the observation the engine recorded before
// the detector chain ran.
type bruteForceDetector struct{}

func (bruteForceDetector) Type() AttackType { return AttackBruteForce }

func (bruteForceDetector) Inspect(in *Inspection) (string, bool) {
	if !in.Login.Exceeded() {
		return "", false
	}
	return fmt.Sprintf("%s tried login %d times in %d seconds",
		in.IPAddress, in.Login.Count, int(in.Login.Window.Seconds())), true
}
