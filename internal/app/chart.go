package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bilal2742/Crypto-bot/internal/chart"
	"github.com/Bilal2742/Crypto-bot/internal/history"
)

// Chart fetches recent klines for one symbol and writes them as a PNG.
func (a *App) Chart(ctx context.Context, opts ChartOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.PNGPath == "" {
		return errors.New("--png is required")
	}
	symbol := strings.ToUpper(opts.Symbol)

	if opts.Interval == "" {
		opts.Interval = a.Config.Alerts.ChartInterval
	}
	if opts.Points <= 0 {
		opts.Points = a.Config.Alerts.ChartPoints
	}

	src := history.NewBinance(history.Options{
		BaseURL:   a.Config.Binance.RESTBaseURL,
		APIKey:    a.Config.Binance.APIKey,
		SecretKey: a.Config.Binance.SecretKey,
		Interval:  opts.Interval,
		Limit:     opts.Points,
	}, a.Logger)

	points, err := src.Points(ctx, symbol)
	if err != nil {
		return err
	}
	a.Logger.Info().Str("symbol", symbol).Int("points", len(points)).Str("interval", opts.Interval).Msg("exporting chart")

	return writeChartPNG(opts.PNGPath, points, chart.Options{
		Title: fmt.Sprintf("%s %s", symbol, opts.Interval),
	})
}

func writeChartPNG(path string, points []chart.Point, opts chart.Options) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return chart.Render(file, points, opts)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
