package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/databot/youtube-tracker/internal/metrics"
)

// ErrQuotaExceeded indicates the requested units are not available. Callers
// treat it as a deferral signal, not a failure.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Cost of an operation in quota units.
type Cost int64

const (
	// CostStats covers videos.list.
	CostStats Cost = 1
	// CostChannel covers channels.list.
	CostChannel Cost = 1
	// CostList covers playlistItems.list.
	CostList Cost = 1
	// CostSearch covers search.list.
	CostSearch Cost = 100
)

// Guard is the single arbitration point for external API quota. It enforces a
// fixed rolling window budget and a daily budget. Window exhaustion blocks
// Acquire until the window rolls over; daily exhaustion rejects immediately.
type Guard struct {
	windowBudget int64
	window       time.Duration
	dailyBudget  int64

	mu          sync.Mutex
	windowUsed  int64
	windowStart time.Time
	dailyUsed   int64
	day         time.Time
	rollover    chan struct{}

	now func() time.Time
}

// NewGuard creates a Guard with the given window and daily budgets.
func NewGuard(windowBudget int64, window time.Duration, dailyBudget int64) *Guard {
	g := &Guard{
		windowBudget: windowBudget,
		window:       window,
		dailyBudget:  dailyBudget,
		rollover:     make(chan struct{}),
		now:          time.Now,
	}
	now := g.now()
	g.windowStart = now
	g.day = now.UTC().Truncate(24 * time.Hour)
	return g
}

// Acquire blocks until cost units are available in the current window, the
// daily budget is exhausted, or ctx is done. Both terminal cases return
// ErrQuotaExceeded.
func (g *Guard) Acquire(ctx context.Context, cost Cost) error {
	c := int64(cost)
	if c <= 0 {
		return nil
	}
	if c > g.windowBudget {
		return fmt.Errorf("cost %d exceeds window budget %d: %w", c, g.windowBudget, ErrQuotaExceeded)
	}

	for {
		g.mu.Lock()
		now := g.now()
		g.roll(now)

		if g.dailyUsed+c > g.dailyBudget {
			g.mu.Unlock()
			metrics.QuotaDeferred.Inc()
			return fmt.Errorf("daily budget exhausted: %w", ErrQuotaExceeded)
		}

		if g.windowUsed+c <= g.windowBudget {
			g.windowUsed += c
			g.dailyUsed += c
			g.mu.Unlock()
			return nil
		}

		wake := g.rollover
		wait := g.windowStart.Add(g.window).Sub(now)
		g.mu.Unlock()

		metrics.QuotaDeferred.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, ctx.Err())
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// TryAcquire takes cost units if they are available right now, otherwise
// returns ErrQuotaExceeded without blocking.
func (g *Guard) TryAcquire(cost Cost) error {
	c := int64(cost)
	if c <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.roll(g.now())

	if g.dailyUsed+c > g.dailyBudget {
		metrics.QuotaDeferred.Inc()
		return fmt.Errorf("daily budget exhausted: %w", ErrQuotaExceeded)
	}
	if g.windowUsed+c > g.windowBudget {
		metrics.QuotaDeferred.Inc()
		return ErrQuotaExceeded
	}

	g.windowUsed += c
	g.dailyUsed += c
	return nil
}

// Usage returns the units consumed in the current window and day.
func (g *Guard) Usage() (window, daily int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.roll(g.now())
	return g.windowUsed, g.dailyUsed
}

// roll resets expired accounting periods. Caller holds g.mu.
func (g *Guard) roll(now time.Time) {
	if now.Sub(g.windowStart) >= g.window {
		g.windowStart = now
		g.windowUsed = 0
		close(g.rollover)
		g.rollover = make(chan struct{})
	}

	day := now.UTC().Truncate(24 * time.Hour)
	if day.After(g.day) {
		g.day = day
		g.dailyUsed = 0
	}
}
