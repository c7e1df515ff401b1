package proxy

import (
	"time"
)

// routeHealth is the mutable state attached 1:1 to a route. Records are
// created when a route enters the pool and live for the pool's lifetime;
// routes are never removed, only cooled down.
type routeHealth struct {
	failures      int
	cooldownUntil time.Time
}

// eligible reports whether the route may be selected at the given time.
func (h *routeHealth) eligible(now time.Time) bool {
	return !now.Before(h.cooldownUntil)
}

// markFailure increments the failure count and extends the cooldown with
// exponential backoff: min(cap, 2^failures) seconds.
func (h *routeHealth) markFailure(now time.Time, cap time.Duration) time.Duration {
	h.failures++
	backoff := backoffFor(h.failures, cap)
	h.cooldownUntil = now.Add(backoff)
	return backoff
}

// markSuccess resets the failure count and cooldown.
func (h *routeHealth) markSuccess() {
	h.failures = 0
	h.cooldownUntil = time.Time{}
}

// backoffFor computes min(cap, 2^failures) seconds without overflowing for
// large failure counts.
func backoffFor(failures int, cap time.Duration) time.Duration {
	if failures <= 0 {
		return 0
	}
	// 2^30s already exceeds any sane cap.
	if failures > 30 {
		return cap
	}
	backoff := time.Duration(1<<uint(failures)) * time.Second
	if backoff > cap {
		return cap
	}
	return backoff
}
