// Package supervisor runs the long-lived units of the process and owns the
// shutdown sequence: the first unit to exit, or an external signal, stops all
// of them.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyStarted is returned when Run is called twice or a unit is
	// added after Run.
	ErrAlreadyStarted = errors.New("supervisor: already started")
	// ErrDuplicateUnit is returned when two units share a name.
	ErrDuplicateUnit = errors.New("supervisor: duplicate unit name")
)

// RunFunc is the body of a unit. It must return once ctx is done.
type RunFunc func(ctx context.Context) error

// UnitError records which unit brought the process down.
type UnitError struct {
	Unit string
	Err  error
}

func (e *UnitError) Error() string { return fmt.Sprintf("unit %s: %v", e.Unit, e.Err) }

func (e *UnitError) Unwrap() error { return e.Err }

// Options tune the supervisor.
type Options struct {
	// ShutdownTimeout bounds how long units get to acknowledge cancellation.
	ShutdownTimeout time.Duration
	// Signals trigger a graceful shutdown. Empty means none are trapped.
	Signals []os.Signal
}

type unit struct {
	name string
	run  RunFunc
}

type hook struct {
	name    string
	release func() error
}

// handle is the supervision handle of one started unit.
type handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Supervisor starts units and coordinates their shutdown.
type Supervisor struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	units   []unit
	names   map[string]struct{}
	hooks   []hook
	handles []*handle
	started atomic.Bool

	// stopping is set under mu once Shutdown has begun.
	stopping bool

	shutdownOnce sync.Once
	shutdownDone chan struct{}
}

// New constructs a Supervisor.
func New(opts Options, logger zerolog.Logger) *Supervisor {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &Supervisor{
		opts:         opts,
		logger:       logger.With().Str("component", "supervisor").Logger(),
		names:        make(map[string]struct{}),
		shutdownDone: make(chan struct{}),
	}
}

// Add registers a unit. Units start in registration order.
func (s *Supervisor) Add(name string, run RunFunc) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.names[name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateUnit, name)
	}
	s.names[name] = struct{}{}
	s.units = append(s.units, unit{name: name, run: run})
	return nil
}

// OnRelease registers a cleanup hook. Hooks run once, after every unit has
// stopped or been abandoned, in reverse registration order.
func (s *Supervisor) OnRelease(name string, release func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{name: name, release: release})
}

// Run starts every unit and blocks until the first one exits or ctx is done,
// then shuts everything down. It returns a *UnitError when a unit failed and
// nil on a clean stop.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if len(s.opts.Signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, s.opts.Signals...)
		defer stop()
	}

	s.mu.Lock()
	units := append([]unit(nil), s.units...)
	s.mu.Unlock()

	exits := make(chan *handle, len(units))
	for _, u := range units {
		s.mu.Lock()
		h := s.start(ctx, u, exits)
		if s.stopping {
			h.cancel()
		}
		s.handles = append(s.handles, h)
		s.mu.Unlock()
	}
	s.logger.Info().Int("units", len(units)).Msg("units started")

	var result error
	select {
	case h := <-exits:
		result = s.exitResult(h)
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown requested")
	}

	s.Shutdown()
	return result
}

func (s *Supervisor) start(parent context.Context, u unit, exits chan<- *handle) *handle {
	ctx, cancel := context.WithCancel(parent)
	h := &handle{name: u.name, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = fmt.Errorf("panic: %v", r)
			}
			exits <- h
		}()
		s.logger.Debug().Str("unit", u.name).Msg("unit starting")
		h.err = u.run(ctx)
	}()
	return h
}

func (s *Supervisor) exitResult(h *handle) error {
	switch {
	case h.err == nil:
		s.logger.Warn().Str("unit", h.name).Msg("unit exited, shutting down")
		return nil
	case errors.Is(h.err, context.Canceled):
		s.logger.Info().Str("unit", h.name).Msg("unit cancelled, shutting down")
		return nil
	default:
		s.logger.Error().Err(h.err).Str("unit", h.name).Msg("unit failed, shutting down")
		return &UnitError{Unit: h.name, Err: h.err}
	}
}

// Shutdown cancels every unit, waits up to ShutdownTimeout for them to stop
// and runs the release hooks. It is safe to call more than once and from any
// goroutine; later calls wait for the first to finish.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		defer close(s.shutdownDone)

		s.mu.Lock()
		s.stopping = true
		handles := append([]*handle(nil), s.handles...)
		hooks := append([]hook(nil), s.hooks...)
		s.mu.Unlock()

		for _, h := range handles {
			h.cancel()
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		abandoned := 0
		for _, h := range handles {
			if !awaitUnit(waitCtx, h) {
				abandoned++
				s.logger.Warn().Str("unit", h.name).Dur("timeout", s.opts.ShutdownTimeout).Msg("unit did not stop in time, abandoning")
			}
		}

		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].release(); err != nil {
				s.logger.Warn().Err(err).Str("hook", hooks[i].name).Msg("release failed")
			}
		}
		s.logger.Info().Int("abandoned", abandoned).Msg("shutdown complete")
	})
	<-s.shutdownDone
}

// awaitUnit reports whether h stopped before ctx expired.
func awaitUnit(ctx context.Context, h *handle) bool {
	select {
	case <-h.done:
		return true
	case <-ctx.Done():
		select {
		case <-h.done:
			return true
		default:
			return false
		}
	}
}
