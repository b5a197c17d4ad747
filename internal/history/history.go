// Package history fetches recent klines from the Binance REST API to back
// alert charts with a longer price history than the in-memory window.
package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"

	"github.com/Bilal2742/Crypto-bot/internal/chart"
)

// ErrNoData is returned when the exchange has no klines for the request.
var ErrNoData = errors.New("history: no klines returned")

// Options parameterise the kline source.
type Options struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Interval  string
	Limit     int
}

// Binance reads klines through go-binance.
type Binance struct {
	client   *binance.Client
	interval string
	limit    int
	logger   zerolog.Logger
}

// NewBinance builds a kline source. Klines are public, so the keys may be empty.
func NewBinance(opts Options, logger zerolog.Logger) *Binance {
	client := binance.NewClient(opts.APIKey, opts.SecretKey)
	if opts.BaseURL != "" {
		client.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Interval == "" {
		opts.Interval = "1m"
	}
	if opts.Limit <= 0 {
		opts.Limit = 90
	}
	return &Binance{
		client:   client,
		interval: opts.Interval,
		limit:    opts.Limit,
		logger:   logger.With().Str("component", "history").Logger(),
	}
}

// Points returns close prices for the most recent klines of symbol, oldest first.
func (b *Binance) Points(ctx context.Context, symbol string) ([]chart.Point, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(b.interval).
		Limit(b.limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s klines: %w", symbol, err)
	}
	if len(klines) == 0 {
		return nil, ErrNoData
	}

	points := make([]chart.Point, 0, len(klines))
	for _, k := range klines {
		price, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			b.logger.Debug().Err(err).Str("symbol", symbol).Msg("skipping kline with bad close")
			continue
		}
		points = append(points, chart.Point{
			Time:  time.UnixMilli(k.CloseTime).UTC(),
			Price: price,
		})
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}
