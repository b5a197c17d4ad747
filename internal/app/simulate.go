package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Bilal2742/Crypto-bot/internal/alerting"
	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
	"github.com/Bilal2742/Crypto-bot/internal/feed"
)

// simulateSteps is the number of synthetic ticks between the two prices.
const simulateSteps = 12

// SimulateOptions describe a synthetic move.
type SimulateOptions struct {
	Symbol  string
	From    decimal.Decimal
	To      decimal.Decimal
	Horizon string
}

// SimulateAlert drives a synthetic move through evaluation and Telegram
// delivery.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	horizons, err := evaluator.ParseHorizons(a.Config.Alerts.Thresholds)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidSimulation, err)
	}

	alert, err := simulate(opts, horizons, time.Now().UTC(), a.Logger)
	if err != nil {
		return err
	}

	dispatcher := alerting.NewDispatcher(a.newNotifier(), alerting.DispatcherOptions{
		ChatID:      a.Config.Telegram.ChatID,
		BotName:     a.Config.Telegram.BotName,
		Charts:      a.Config.Alerts.ChartEnabled,
		ChartPoints: a.Config.Alerts.ChartPoints,
	}, a.Logger)
	return dispatcher.Deliver(ctx, alert)
}

var errInvalidSimulation = errors.New("invalid simulation")

// simulate feeds a linear move from opts.From to opts.To through a fresh
// evaluator so the alert carries real window samples. The move ends at now.
func simulate(opts SimulateOptions, horizons []evaluator.Horizon, now time.Time, logger zerolog.Logger) (evaluator.Alert, error) {
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))
	if symbol == "" {
		return evaluator.Alert{}, fmt.Errorf("%w: symbol is required", errInvalidSimulation)
	}
	if !opts.From.IsPositive() || !opts.To.IsPositive() {
		return evaluator.Alert{}, fmt.Errorf("%w: prices must be positive", errInvalidSimulation)
	}

	horizon, ok := findHorizon(horizons, opts.Horizon)
	if !ok {
		return evaluator.Alert{}, fmt.Errorf("%w: horizon %q is not configured", errInvalidSimulation, opts.Horizon)
	}

	ev, err := evaluator.New(evaluator.Options{Horizons: []evaluator.Horizon{horizon}}, logger)
	if err != nil {
		return evaluator.Alert{}, err
	}

	start := now.Add(-horizon.Window)
	step := horizon.Window / simulateSteps
	delta := opts.To.Sub(opts.From).Div(decimal.NewFromInt(simulateSteps))

	var fired []evaluator.Alert
	for i := 0; i <= simulateSteps; i++ {
		price := opts.From.Add(delta.Mul(decimal.NewFromInt(int64(i))))
		ts := start.Add(time.Duration(i) * step)
		if i == simulateSteps {
			price, ts = opts.To, now
		}
		fired = append(fired, ev.Evaluate(feed.Tick{Symbol: symbol, Price: price, Timestamp: ts})...)
	}

	if len(fired) == 0 {
		change := opts.To.Sub(opts.From).Div(opts.From).Mul(decimal.NewFromInt(100))
		return evaluator.Alert{}, fmt.Errorf("%w: %s%% over %s stays under the %s%% threshold",
			errInvalidSimulation, change.StringFixed(2), horizon.Label, horizon.Threshold.String())
	}
	return fired[len(fired)-1], nil
}

// findHorizon defaults to the shortest horizon when label is empty.
func findHorizon(horizons []evaluator.Horizon, label string) (evaluator.Horizon, bool) {
	if len(horizons) == 0 {
		return evaluator.Horizon{}, false
	}
	if label == "" {
		return horizons[0], true
	}
	for _, h := range horizons {
		if h.Label == label {
			return h, true
		}
	}
	return evaluator.Horizon{}, false
}
