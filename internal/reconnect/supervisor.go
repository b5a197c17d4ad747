// Package reconnect keeps a ticker stream available across transient network
// failures: it reopens dropped or idle streams with exponential backoff and
// halts for good once the retry budget is spent.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bilal2742/Crypto-bot/internal/feed"
	"github.com/Bilal2742/Crypto-bot/internal/metrics"
)

var (
	// ErrRetryExhausted is returned once consecutive failures reach MaxAttempts.
	ErrRetryExhausted = errors.New("reconnect: retry budget exhausted")
	// ErrAlreadyRunning is returned when Run is entered twice.
	ErrAlreadyRunning = errors.New("reconnect: supervisor already running")
)

// State of the reconnect loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateBackoff
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// Opener opens a fresh stream.
type Opener interface {
	Open(ctx context.Context) (feed.Stream, error)
}

// Options tune the supervisor.
type Options struct {
	Policy         Policy
	ReceiveTimeout time.Duration
	// Sleep replaces the backoff wait; tests use it to observe waits.
	Sleep   SleepFunc
	Metrics *metrics.Recorder
}

// Status is a point-in-time view of the loop for reporting.
type Status struct {
	State       State
	Attempt     int
	MaxAttempts int
	LastWait    time.Duration
	Connects    int64
	Ticks       int64
}

// retryState is owned by the Run goroutine.
type retryState struct {
	attempt  int
	lastWait time.Duration
}

// Supervisor drives the Disconnected → Connected → Backoff → Halted loop.
type Supervisor struct {
	opener  Opener
	opts    Options
	sleep   SleepFunc
	metrics *metrics.Recorder
	logger  zerolog.Logger

	running atomic.Bool

	state    atomic.Int32
	attempt  atomic.Int64
	lastWait atomic.Int64
	connects atomic.Int64
	ticks    atomic.Int64
}

// New constructs a Supervisor.
func New(opener Opener, opts Options, logger zerolog.Logger) *Supervisor {
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultPolicy()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Supervisor{
		opener:  opener,
		opts:    opts,
		sleep:   sleep,
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "reconnect").Logger(),
	}
}

// Status returns the latest published snapshot.
func (s *Supervisor) Status() Status {
	return Status{
		State:       State(s.state.Load()),
		Attempt:     int(s.attempt.Load()),
		MaxAttempts: s.opts.Policy.MaxAttempts,
		LastWait:    time.Duration(s.lastWait.Load()),
		Connects:    s.connects.Load(),
		Ticks:       s.ticks.Load(),
	}
}

// Run keeps a stream open and forwards its ticks to out in receipt order. It
// returns ctx.Err() on cancellation or an error wrapping ErrRetryExhausted
// once the retry budget is spent.
func (s *Supervisor) Run(ctx context.Context, out chan<- feed.Tick) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	var retry retryState
	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateDisconnected)
			return err
		}

		s.setState(StateDisconnected)
		cause := s.connectAndConsume(ctx, out, &retry)
		if err := ctx.Err(); err != nil {
			s.setState(StateDisconnected)
			return err
		}

		s.setState(StateBackoff)
		retry.attempt++
		s.publishRetry(retry)

		if retry.attempt >= s.opts.Policy.MaxAttempts {
			s.setState(StateHalted)
			s.logger.Error().Err(cause).
				Int("attempt", retry.attempt).
				Int("max_attempts", s.opts.Policy.MaxAttempts).
				Msg("maximum retries reached, halting stream")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, retry.attempt, cause)
		}

		wait := s.opts.Policy.Wait(retry.attempt)
		retry.lastWait = wait
		s.publishRetry(retry)
		s.metrics.Backoff(wait)
		s.logger.Warn().Err(cause).
			Int("attempt", retry.attempt).
			Int("max_attempts", s.opts.Policy.MaxAttempts).
			Dur("wait", wait).
			Msg("stream unavailable, backing off")

		if err := s.sleep(ctx, wait); err != nil {
			s.setState(StateDisconnected)
			return err
		}
	}
}

// connectAndConsume returns the reason the stream became unavailable.
func (s *Supervisor) connectAndConsume(ctx context.Context, out chan<- feed.Tick, retry *retryState) error {
	stream, err := s.opener.Open(ctx)
	if err != nil {
		s.metrics.ConnectAttempt(false)
		return err
	}
	defer stream.Close()

	s.metrics.ConnectAttempt(true)
	s.connects.Add(1)
	s.setState(StateConnected)
	s.logger.Info().Int("attempt", retry.attempt).Msg("stream connected")

	return s.consume(ctx, stream, out, retry)
}

func (s *Supervisor) consume(ctx context.Context, stream feed.Stream, out chan<- feed.Tick, retry *retryState) error {
	for {
		ticks, err := stream.Receive(ctx, s.opts.ReceiveTimeout)
		if err != nil {
			var decErr *feed.DecodeError
			switch {
			case errors.As(err, &decErr):
				s.metrics.DecodeError()
				s.logger.Warn().Err(err).Msg("skipping malformed frame")
				continue
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, feed.ErrIdle):
				s.metrics.Disconnected("idle")
				s.logger.Warn().Dur("timeout", s.opts.ReceiveTimeout).Msg("no frame within receive timeout, reconnecting")
				return err
			default:
				s.metrics.Disconnected("closed")
				s.logger.Warn().Err(err).Msg("stream closed, reconnecting")
				return err
			}
		}

		// A frame with no ticks proves nothing about the stream's health.
		if len(ticks) > 0 && retry.attempt != 0 {
			s.logger.Info().Int("previous_attempt", retry.attempt).Msg("stream healthy, retry streak reset")
			retry.attempt = 0
			retry.lastWait = 0
			s.publishRetry(*retry)
		}

		s.ticks.Add(int64(len(ticks)))
		s.metrics.TicksReceived(len(ticks))
		for _, tick := range ticks {
			select {
			case out <- tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
	s.metrics.StreamState(int(state))
}

func (s *Supervisor) publishRetry(r retryState) {
	s.attempt.Store(int64(r.attempt))
	s.lastWait.Store(int64(r.lastWait))
	s.metrics.RetryAttempt(r.attempt)
}
