package download

import (
	"context"
	"sync"
	"time"
)

// Limiter caps aggregate download throughput across every transfer in
// the process. The byte budget is replenished once per window; a
// transfer consumes from the budget before writing a chunk, or sleeps
// until the next window opens. A nil limiter or a non-positive rate
// means unlimited.
type Limiter struct {
	rate   int64 // bytes per window
	window time.Duration

	mu        sync.Mutex
	remaining int64
	resetAt   time.Time
}

// NewLimiter creates a limiter allowing bytesPerSecond across all
// transfers. A non-positive rate disables limiting.
func NewLimiter(bytesPerSecond int64) *Limiter {
	return &Limiter{
		rate:   bytesPerSecond,
		window: time.Second,
	}
}

// Rate returns the configured budget in bytes per second.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return l.rate
}

// Acquire consumes n bytes from the shared budget, sleeping across
// window boundaries until the full amount is granted. It returns early
// only when ctx is done.
func (l *Limiter) Acquire(ctx context.Context, n int64) error {
	if l == nil || l.rate <= 0 {
		return nil
	}

	need := n
	for need > 0 {
		l.mu.Lock()
		now := time.Now()
		if !now.Before(l.resetAt) {
			l.remaining = l.rate
			l.resetAt = now.Add(l.window)
		}
		if l.remaining > 0 {
			take := l.remaining
			if take > need {
				take = need
			}
			l.remaining -= take
			need -= take
			l.mu.Unlock()
			continue
		}
		wait := l.resetAt.Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
