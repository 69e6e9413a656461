package blario

import (
	"math"
	"time"
)

// reconnector decides whether and when a dropped connection may be retried.
// Attempt n (zero-based) waits base * 2^n, capped at maxDelay. The counter
// resets only on a successful connect. Not safe for concurrent use; the
// Client serialises access under its mutex.
type reconnector struct {
	base        time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
}

func newReconnector(base, maxDelay time.Duration, maxAttempts int) *reconnector {
	return &reconnector{base: base, maxDelay: maxDelay, maxAttempts: maxAttempts}
}

// exhausted reports whether the attempt cap has been reached. Once true the
// owning session is failed for good.
func (r *reconnector) exhausted() bool {
	return r.attempt >= r.maxAttempts
}

// nextDelay returns the backoff delay for the current attempt and advances
// the counter. Callers must check exhausted first.
func (r *reconnector) nextDelay() time.Duration {
	d := time.Duration(float64(r.base) * math.Pow(2, float64(r.attempt)))
	if d > r.maxDelay || d <= 0 {
		d = r.maxDelay
	}
	r.attempt++
	return d
}

// retrying reports whether at least one reconnect attempt has been consumed,
// i.e. the next connect is a retry rather than a first connect.
func (r *reconnector) retrying() bool {
	return r.attempt > 0
}

// reset clears the counter after a successful connect.
func (r *reconnector) reset() {
	r.attempt = 0
}
