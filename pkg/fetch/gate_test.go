package fetch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestGate_PermitBound verifies that with limit k no more than k holders are
// ever inside the acquire/release window at once.
func TestGate_PermitBound(t *testing.T) {
	const limit = 3
	const workers = 20

	gate := NewGate(limit)

	var current, peak int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := gate.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer gate.Release()

			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		}()
	}
	wg.Wait()

	if peak > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak, limit)
	}
	if peak == 0 {
		t.Error("no worker ever held a permit")
	}
}

func TestGate_AcquireCancellation(t *testing.T) {
	gate := NewGate(1)

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := gate.Acquire(ctx); err == nil {
		t.Error("second Acquire succeeded while gate was saturated")
		gate.Release()
	}

	gate.Release()
	if err := gate.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire after Release failed: %v", err)
	}
}

func TestNewGate_DefaultLimit(t *testing.T) {
	if got := NewGate(0).Limit(); got != DefaultConcurrencyLimit {
		t.Errorf("Limit() = %d, want %d", got, DefaultConcurrencyLimit)
	}
	if got := NewGate(-2).Limit(); got != DefaultConcurrencyLimit {
		t.Errorf("Limit() = %d, want %d", got, DefaultConcurrencyLimit)
	}
}
