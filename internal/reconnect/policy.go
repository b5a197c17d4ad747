package reconnect

import (
	"context"
	"runtime"
	"time"

	"github.com/jpillora/backoff"
)

// Policy bounds the retry loop. The wait before reconnect attempt n is
// min(Unit*Base^n, Cap).
type Policy struct {
	MaxAttempts int
	Base        float64
	Unit        time.Duration
	Cap         time.Duration
}

// DefaultPolicy mirrors the production defaults: ten attempts, doubling from
// one second up to five minutes.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 10, Base: 2, Unit: time.Second, Cap: 300 * time.Second}
}

// Wait returns the backoff for the given consecutive failure count.
func (p Policy) Wait(attempt int) time.Duration {
	b := &backoff.Backoff{Min: p.Unit, Max: p.Cap, Factor: p.Base}
	return b.ForAttempt(float64(attempt))
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext always yields at least once so a zero wait cannot spin.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
