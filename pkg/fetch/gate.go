package fetch

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrencyLimit is the default number of in-flight fetches.
const DefaultConcurrencyLimit = 5

// Gate bounds the number of concurrent fetches with a fixed permit count.
type Gate struct {
	sem   *semaphore.Weighted
	limit int
}

// NewGate creates a gate with the given permit count. Non-positive limits
// fall back to the default.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: limit,
	}
}

// Acquire blocks until a permit is available or the context is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release returns a permit. Every successful Acquire must be paired with
// exactly one Release, typically via defer.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Limit returns the configured permit count.
func (g *Gate) Limit() int {
	return g.limit
}
