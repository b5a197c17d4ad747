// Package evaluator turns a tick stream into percent-change alerts over one or
// more lookback horizons, with a per symbol/horizon cooldown.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/Bilal2742/Crypto-bot/internal/feed"
	"github.com/Bilal2742/Crypto-bot/internal/metrics"
)

var hundred = decimal.NewFromInt(100)

const defaultResolution = time.Second

// Horizon is a lookback duration with its alert threshold in percent.
type Horizon struct {
	Label     string
	Window    time.Duration
	Threshold decimal.Decimal
}

// ParseHorizons builds horizons from label → percent pairs, shortest first.
func ParseHorizons(thresholds map[string]float64) ([]Horizon, error) {
	if len(thresholds) == 0 {
		return nil, errors.New("at least one horizon is required")
	}
	horizons := make([]Horizon, 0, len(thresholds))
	for label, pct := range thresholds {
		label = strings.TrimSpace(label)
		window, err := str2duration.ParseDuration(label)
		if err != nil {
			return nil, fmt.Errorf("parse horizon %q: %w", label, err)
		}
		if window <= 0 {
			return nil, fmt.Errorf("horizon %q must be positive", label)
		}
		if pct <= 0 {
			return nil, fmt.Errorf("threshold for %q must be positive", label)
		}
		horizons = append(horizons, Horizon{Label: label, Window: window, Threshold: decimal.NewFromFloat(pct)})
	}
	sort.Slice(horizons, func(i, j int) bool { return horizons[i].Window < horizons[j].Window })
	return horizons, nil
}

// Alert is emitted when a horizon threshold is crossed.
type Alert struct {
	Symbol         string
	Horizon        string
	Window         time.Duration
	PercentChange  decimal.Decimal
	Threshold      decimal.Decimal
	Price          decimal.Decimal
	ReferencePrice decimal.Decimal
	ReferenceTime  time.Time
	TriggeredAt    time.Time
	// Samples is a copy of the symbol's window when the alert fired.
	Samples []Sample
}

// Direction classifies the move.
func (a Alert) Direction() string {
	switch a.PercentChange.Sign() {
	case 1:
		return "up"
	case -1:
		return "down"
	default:
		return "flat"
	}
}

// Options tune the evaluator.
type Options struct {
	Horizons []Horizon
	Cooldown time.Duration
	// Resolution is the sample bucket width. Horizon lookups match on bucket
	// boundaries, so it must be coarser than tick timestamp jitter. Defaults
	// to one second.
	Resolution time.Duration
	Metrics    *metrics.Recorder
}

type cooldownKey struct {
	symbol  string
	horizon string
}

// Evaluator owns every window and cooldown; it is not safe for concurrent use
// and is meant to be driven by a single goroutine through Run.
type Evaluator struct {
	horizons   []Horizon
	maxWindow  time.Duration
	cooldown   time.Duration
	resolution time.Duration
	metrics    *metrics.Recorder
	logger     zerolog.Logger

	windows   map[string]*Window
	cooldowns map[cooldownKey]time.Time
	tracked   atomic.Int64
}

// New constructs an Evaluator.
func New(opts Options, logger zerolog.Logger) (*Evaluator, error) {
	if len(opts.Horizons) == 0 {
		return nil, errors.New("evaluator needs at least one horizon")
	}
	horizons := append([]Horizon(nil), opts.Horizons...)
	sort.Slice(horizons, func(i, j int) bool { return horizons[i].Window < horizons[j].Window })

	maxWindow := lo.MaxBy(horizons, func(a, b Horizon) bool { return a.Window > b.Window }).Window

	return &Evaluator{
		horizons:   horizons,
		maxWindow:  maxWindow,
		cooldown:   opts.Cooldown,
		resolution: lo.Ternary(opts.Resolution > 0, opts.Resolution, defaultResolution),
		metrics:    opts.Metrics,
		logger:     logger.With().Str("component", "evaluator").Logger(),
		windows:    make(map[string]*Window),
		cooldowns:  make(map[cooldownKey]time.Time),
	}, nil
}

// Horizons returns the configured horizons, shortest first.
func (e *Evaluator) Horizons() []Horizon {
	return append([]Horizon(nil), e.horizons...)
}

// MaxWindow is the longest configured horizon, which bounds every window.
func (e *Evaluator) MaxWindow() time.Duration { return e.maxWindow }

// TrackedSymbols is safe to call from any goroutine.
func (e *Evaluator) TrackedSymbols() int { return int(e.tracked.Load()) }

// Window exposes a symbol's window for inspection.
func (e *Evaluator) Window(symbol string) (*Window, bool) {
	w, ok := e.windows[symbol]
	return w, ok
}

// Evaluate folds one tick into its symbol window and returns any alerts.
func (e *Evaluator) Evaluate(t feed.Tick) []Alert {
	w, ok := e.windows[t.Symbol]
	if !ok {
		w = &Window{}
		e.windows[t.Symbol] = w
		e.tracked.Store(int64(len(e.windows)))
		e.metrics.TrackedSymbols(len(e.windows))
	}

	if !w.Add(Sample{Time: t.Timestamp, Price: t.Price}, e.resolution) {
		return nil
	}
	now := t.Timestamp.Truncate(e.resolution)
	w.Evict(now.Add(-e.maxWindow))

	var alerts []Alert
	for _, h := range e.horizons {
		ref, ok := w.At(now.Add(-h.Window))
		if !ok || ref.Price.IsZero() {
			continue
		}

		pct := t.Price.Sub(ref.Price).Div(ref.Price).Mul(hundred)
		if pct.Abs().LessThan(h.Threshold) {
			continue
		}

		key := cooldownKey{symbol: t.Symbol, horizon: h.Label}
		if last, seen := e.cooldowns[key]; seen && t.Timestamp.Sub(last) < e.cooldown {
			continue
		}
		e.cooldowns[key] = t.Timestamp

		alerts = append(alerts, Alert{
			Symbol:         t.Symbol,
			Horizon:        h.Label,
			Window:         h.Window,
			PercentChange:  pct,
			Threshold:      h.Threshold,
			Price:          t.Price,
			ReferencePrice: ref.Price,
			ReferenceTime:  ref.Time,
			TriggeredAt:    t.Timestamp,
			Samples:        w.Snapshot(),
		})
	}
	return alerts
}

// Run evaluates ticks from in until ctx is done. Alerts that do not fit in out
// are dropped; delivery is best effort and must not stall the feed.
func (e *Evaluator) Run(ctx context.Context, in <-chan feed.Tick, out chan<- Alert) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-in:
			if !ok {
				return nil
			}
			for _, alert := range e.Evaluate(t) {
				e.metrics.AlertEmitted(alert.Horizon)
				select {
				case out <- alert:
				default:
					e.metrics.AlertDropped()
					e.logger.Warn().
						Str("symbol", alert.Symbol).
						Str("horizon", alert.Horizon).
						Msg("alert queue full, dropping alert")
				}
			}
		}
	}
}
