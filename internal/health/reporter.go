// Package health produces the periodic status report and prunes old alerts.
package health

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bilal2742/Crypto-bot/internal/alerting"
	"github.com/Bilal2742/Crypto-bot/internal/reconnect"
)

// AlertPruner is the storage surface the reporter needs.
type AlertPruner interface {
	CountAlertsSince(ctx context.Context, since time.Time) (int64, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Sources are read-only views into running components. Any may be nil.
type Sources struct {
	Stream         func() reconnect.Status
	TrackedSymbols func() int
	Dispatch       func() alerting.DispatchStats
	Store          AlertPruner
}

// Options configure the reporter.
type Options struct {
	BotName   string
	Interval  time.Duration
	Retention time.Duration
}

// Snapshot is one status reading.
type Snapshot struct {
	At             time.Time
	Uptime         time.Duration
	Stream         reconnect.Status
	TrackedSymbols int
	Dispatch       alerting.DispatchStats
}

// Reporter logs a status line on every tick and answers /status.
type Reporter struct {
	opts    Options
	src     Sources
	started time.Time
	now     func() time.Time
	logger  zerolog.Logger
}

// NewReporter builds a reporter.
func NewReporter(opts Options, src Sources, logger zerolog.Logger) *Reporter {
	return &Reporter{
		opts:    opts,
		src:     src,
		started: time.Now(),
		now:     time.Now,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Snapshot collects the current readings.
func (r *Reporter) Snapshot() Snapshot {
	now := r.now()
	s := Snapshot{At: now.UTC(), Uptime: now.Sub(r.started).Truncate(time.Second)}
	if r.src.Stream != nil {
		s.Stream = r.src.Stream()
	}
	if r.src.TrackedSymbols != nil {
		s.TrackedSymbols = r.src.TrackedSymbols()
	}
	if r.src.Dispatch != nil {
		s.Dispatch = r.src.Dispatch()
	}
	return s
}

// Tick logs the status line and prunes alerts older than the retention.
func (r *Reporter) Tick(ctx context.Context, at time.Time) error {
	s := r.Snapshot()
	r.logger.Info().
		Str("state", s.Stream.State.String()).
		Int("retries", s.Stream.Attempt).
		Int("max_retries", s.Stream.MaxAttempts).
		Int64("connects", s.Stream.Connects).
		Int64("ticks", s.Stream.Ticks).
		Int("symbols", s.TrackedSymbols).
		Int64("alerts_delivered", s.Dispatch.Delivered).
		Int64("alerts_failed", s.Dispatch.Failed).
		Dur("uptime", s.Uptime).
		Msgf("System status: Retries %d/%d", s.Stream.Attempt, s.Stream.MaxAttempts)

	if r.src.Store == nil || r.opts.Retention <= 0 {
		return nil
	}
	deleted, err := r.src.Store.DeleteAlertsBefore(ctx, at.Add(-r.opts.Retention))
	if err != nil {
		return fmt.Errorf("prune alerts: %w", err)
	}
	if deleted > 0 {
		r.logger.Info().Int64("deleted", deleted).Dur("retention", r.opts.Retention).Msg("pruned old alerts")
	}
	return nil
}

// Render formats the snapshot for the /status command.
func (r *Reporter) Render(ctx context.Context) string {
	s := r.Snapshot()

	b := strings.Builder{}
	if r.opts.BotName != "" {
		b.WriteString(fmt.Sprintf("<b>%s</b>\n", html.EscapeString(r.opts.BotName)))
	}
	b.WriteString(fmt.Sprintf("Stream: %s\n", s.Stream.State))
	b.WriteString(fmt.Sprintf("Retries: %d/%d", s.Stream.Attempt, s.Stream.MaxAttempts))
	if s.Stream.State == reconnect.StateBackoff && s.Stream.LastWait > 0 {
		b.WriteString(fmt.Sprintf(" (waiting %s)", s.Stream.LastWait))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Symbols: %d, ticks: %d\n", s.TrackedSymbols, s.Stream.Ticks))
	b.WriteString(fmt.Sprintf("Alerts sent: %d, failed: %d\n", s.Dispatch.Delivered, s.Dispatch.Failed))
	if !s.Dispatch.LastAlert.IsZero() {
		b.WriteString(fmt.Sprintf("Last alert: %s UTC\n", s.Dispatch.LastAlert.Format(time.DateTime)))
	}
	if r.src.Store != nil {
		if count, err := r.src.Store.CountAlertsSince(ctx, s.At.Add(-24*time.Hour)); err == nil {
			b.WriteString(fmt.Sprintf("Alerts (24h): %d\n", count))
		} else {
			r.logger.Debug().Err(err).Msg("count alerts for status failed")
		}
	}
	b.WriteString(fmt.Sprintf("Uptime: %s", s.Uptime))
	return b.String()
}
