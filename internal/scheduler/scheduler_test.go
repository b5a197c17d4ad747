package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroInterval(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	require.Error(t, err)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s, err := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	var ticks atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			ticks.Add(1)
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunImmediately(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, RunImmediately: true}, zerolog.Nop())
	require.NoError(t, err)

	fired := make(chan time.Time, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(_ context.Context, at time.Time) error {
			fired <- at
			return nil
		})
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate tick")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNextTickAligned(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), s.nextTick(now))
	require.Equal(t, time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC), s.nextTick(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Hour-time.Nanosecond)))
}

func TestStartupDelayHonoursCancel(t *testing.T) {
	s, err := New(Options{Interval: time.Second, StartupDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Run(ctx, func(context.Context, time.Time) error { return nil }), context.Canceled)
}
