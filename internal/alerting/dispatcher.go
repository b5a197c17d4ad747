// Package alerting delivers alerts to Telegram and keeps an audit trail.
package alerting

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/Bilal2742/Crypto-bot/internal/chart"
	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
	"github.com/Bilal2742/Crypto-bot/internal/metrics"
	"github.com/Bilal2742/Crypto-bot/internal/storage"
)

// PointSource provides a price history for charting.
type PointSource interface {
	Points(ctx context.Context, symbol string) ([]chart.Point, error)
}

// AlertRecorder persists delivered alerts.
type AlertRecorder interface {
	InsertAlert(ctx context.Context, alert storage.AlertRecord) (storage.AlertRecord, error)
}

// DispatcherOptions configure the Dispatcher.
type DispatcherOptions struct {
	ChatID  string
	BotName string
	// Charts attaches a price chart to every alert.
	Charts      bool
	ChartPoints int
	History     PointSource
	Store       AlertRecorder
	Metrics     *metrics.Recorder
	// Timeout bounds the delivery of a single alert, chart included.
	Timeout time.Duration
}

// DispatchStats summarises delivery outcomes.
type DispatchStats struct {
	Delivered int64
	Failed    int64
	LastAlert time.Time
}

// Dispatcher consumes alerts and pushes them through a Notifier.
type Dispatcher struct {
	notifier Notifier
	opts     DispatcherOptions
	logger   zerolog.Logger

	delivered atomic.Int64
	failed    atomic.Int64
	lastAlert atomic.Int64
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(notifier Notifier, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		notifier: notifier,
		opts:     opts,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Stats is safe to call from any goroutine.
func (d *Dispatcher) Stats() DispatchStats {
	stats := DispatchStats{Delivered: d.delivered.Load(), Failed: d.failed.Load()}
	if ns := d.lastAlert.Load(); ns != 0 {
		stats.LastAlert = time.Unix(0, ns).UTC()
	}
	return stats
}

// Run delivers alerts until ctx is done or alerts is closed. Delivery errors
// are logged and dropped.
func (d *Dispatcher) Run(ctx context.Context, alerts <-chan evaluator.Alert) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert, ok := <-alerts:
			if !ok {
				return nil
			}
			_ = d.Deliver(ctx, alert)
		}
	}
}

// Deliver sends one alert, attaches its chart and records the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, alert evaluator.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	d.lastAlert.Store(alert.TriggeredAt.UnixNano())
	log := d.logger.With().
		Str("symbol", alert.Symbol).
		Str("horizon", alert.Horizon).
		Str("change_pct", alert.PercentChange.StringFixed(2)).
		Logger()

	textErr := d.notifier.SendText(ctx, d.opts.ChatID, RenderAlert(d.opts.BotName, alert))
	d.opts.Metrics.Delivery("text", textErr)
	if textErr != nil {
		d.failed.Add(1)
		log.Error().Err(textErr).Msg("telegram alert delivery failed")
	} else {
		d.delivered.Add(1)
		log.Info().Msg("telegram alert sent")
	}

	var imageErr error
	if d.opts.Charts && textErr == nil {
		imageErr = d.sendChart(ctx, alert)
		d.opts.Metrics.Delivery("image", imageErr)
		if imageErr != nil {
			log.Warn().Err(imageErr).Msg("chart delivery failed")
		}
	}

	d.record(ctx, alert, textErr, log)
	return errors.Join(textErr, imageErr)
}

func (d *Dispatcher) sendChart(ctx context.Context, alert evaluator.Alert) error {
	points := d.chartPoints(ctx, alert)
	png, err := chart.RenderPNG(points, chart.Options{
		Title:     alert.Symbol + " " + alert.Horizon,
		Marker:    alert.ReferencePrice.InexactFloat64(),
		MaxPoints: d.opts.ChartPoints,
	})
	if err != nil {
		return err
	}
	return d.notifier.SendImage(ctx, d.opts.ChatID, png, RenderCaption(alert))
}

// chartPoints prefers exchange klines and falls back to the alert's own window.
func (d *Dispatcher) chartPoints(ctx context.Context, alert evaluator.Alert) []chart.Point {
	if d.opts.History != nil {
		points, err := d.opts.History.Points(ctx, alert.Symbol)
		if err == nil && len(points) >= 2 {
			return points
		}
		d.logger.Debug().Err(err).Str("symbol", alert.Symbol).Msg("history unavailable, charting window samples")
	}
	return SamplePoints(alert.Samples)
}

func (d *Dispatcher) record(ctx context.Context, alert evaluator.Alert, deliveryErr error, log zerolog.Logger) {
	if d.opts.Store == nil {
		return
	}
	rec := storage.AlertRecord{
		Symbol:         alert.Symbol,
		Horizon:        alert.Horizon,
		PercentChange:  alert.PercentChange,
		ThresholdPct:   alert.Threshold,
		Price:          alert.Price,
		ReferencePrice: alert.ReferencePrice,
		TriggeredAt:    alert.TriggeredAt,
		Delivered:      deliveryErr == nil,
	}
	if deliveryErr != nil {
		rec.DeliveryError = lo.ToPtr(deliveryErr.Error())
	}
	if _, err := d.opts.Store.InsertAlert(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to persist alert record")
	}
}

// SamplePoints converts window samples to chart points.
func SamplePoints(samples []evaluator.Sample) []chart.Point {
	return lo.Map(samples, func(s evaluator.Sample, _ int) chart.Point {
		return chart.Point{Time: s.Time, Price: s.Price.InexactFloat64()}
	})
}
