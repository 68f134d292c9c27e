package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evoflow-ai/evoflow-go/pkg/errors"
)

// Budget tracks cumulative USD spend against an optional ceiling. It is
// injected into the scheduler and engine at construction time so tests
// can instantiate isolated budgets; there is no process-wide tracker.
//
// Spend is stored in integer micro-dollars so concurrent charges are a
// single atomic add rather than a read-then-write race.
type Budget struct {
	maxMicroUSD int64 // 0 means unlimited
	spent       atomic.Int64
}

const microPerUSD = 1_000_000

// NewBudget creates a budget with the given ceiling in USD. A ceiling
// of zero (or below) means unlimited.
func NewBudget(maxCostUSD float64) *Budget {
	b := &Budget{}
	if maxCostUSD > 0 {
		b.maxMicroUSD = int64(maxCostUSD * microPerUSD)
	}
	return b
}

// Charge records a spend and reports whether the ceiling is now
// exceeded. The charge is applied even when it crosses the ceiling so
// the overshooting call is accounted for in the trail.
func (b *Budget) Charge(usd float64) error {
	if usd < 0 {
		return errors.New(errors.InvalidInput, "cannot charge a negative amount")
	}
	total := b.spent.Add(int64(usd * microPerUSD))
	if b.maxMicroUSD > 0 && total > b.maxMicroUSD {
		return errors.WithFields(
			errors.New(errors.BudgetExceeded, "cost budget exceeded"),
			errors.Fields{
				"spent_usd": float64(total) / microPerUSD,
				"limit_usd": float64(b.maxMicroUSD) / microPerUSD,
			})
	}
	return nil
}

// Exceeded reports whether the ceiling has already been crossed.
func (b *Budget) Exceeded() bool {
	return b.maxMicroUSD > 0 && b.spent.Load() > b.maxMicroUSD
}

// SpentUSD returns the cumulative spend in USD.
func (b *Budget) SpentUSD() float64 {
	return float64(b.spent.Load()) / microPerUSD
}

// RateLimiter bounds AI requests to maxRequests within a sliding
// window. Like Budget, it is injected rather than global.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	stamps      []time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window.
// A non-positive maxRequests disables limiting.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{maxRequests: maxRequests, window: window}
}

// TryAcquire claims a slot without blocking.
func (l *RateLimiter) TryAcquire() bool {
	if l == nil || l.maxRequests <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryAcquireLocked(time.Now())
}

func (l *RateLimiter) tryAcquireLocked(now time.Time) bool {
	cutoff := now.Add(-l.window)
	keep := l.stamps[:0]
	for _, s := range l.stamps {
		if s.After(cutoff) {
			keep = append(keep, s)
		}
	}
	l.stamps = keep

	if len(l.stamps) >= l.maxRequests {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// Acquire blocks until a slot frees up or the context is done.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l == nil || l.maxRequests <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		now := time.Now()
		if l.tryAcquireLocked(now) {
			l.mu.Unlock()
			return nil
		}
		// Sleep until the oldest stamp leaves the window.
		wait := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.Canceled, "rate limiter wait canceled")
		case <-time.After(wait):
		}
	}
}
