package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Bilal2742/Crypto-bot/internal/config"
	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
	"github.com/Bilal2742/Crypto-bot/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{
			BotToken:       "123:abc",
			ChatID:         "-100200",
			BotName:        "Crypto Pump Bot",
			RequestTimeout: 2 * time.Second,
		},
		Alerts: config.AlertsConfig{
			Thresholds:    map[string]float64{"5m": 5, "1h": 50},
			Cooldown:      15 * time.Minute,
			Resolution:    time.Second,
			QueueSize:     8,
			ChartInterval: "1m",
			ChartPoints:   90,
		},
		Shutdown: config.ShutdownConfig{Timeout: time.Second},
	}
}

func horizons(t *testing.T) []evaluator.Horizon {
	t.Helper()
	h, err := evaluator.ParseHorizons(map[string]float64{"5m": 5, "1h": 50})
	require.NoError(t, err)
	return h
}

func TestSimulateFiresOnConfiguredHorizon(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	alert, err := simulate(SimulateOptions{
		Symbol:  "btcusdt",
		From:    decimal.NewFromInt(100),
		To:      decimal.NewFromInt(106),
		Horizon: "5m",
	}, horizons(t), now, zerolog.Nop())
	require.NoError(t, err)

	require.Equal(t, "BTCUSDT", alert.Symbol)
	require.Equal(t, "5m", alert.Horizon)
	require.Equal(t, "6.00", alert.PercentChange.StringFixed(2))
	require.Equal(t, now, alert.TriggeredAt)
	require.Equal(t, now.Add(-5*time.Minute), alert.ReferenceTime)
	require.Len(t, alert.Samples, simulateSteps+1)
}

func TestSimulateDefaultsToShortestHorizon(t *testing.T) {
	alert, err := simulate(SimulateOptions{
		Symbol: "ETHUSDT",
		From:   decimal.NewFromInt(2000),
		To:     decimal.NewFromInt(1800),
	}, horizons(t), time.Now(), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "5m", alert.Horizon)
	require.Equal(t, "down", alert.Direction())
}

func TestSimulateRejectsInput(t *testing.T) {
	cases := map[string]SimulateOptions{
		"below threshold": {Symbol: "BTCUSDT", From: decimal.NewFromInt(100), To: decimal.NewFromInt(101), Horizon: "5m"},
		"unknown horizon": {Symbol: "BTCUSDT", From: decimal.NewFromInt(100), To: decimal.NewFromInt(200), Horizon: "4h"},
		"missing symbol":  {From: decimal.NewFromInt(100), To: decimal.NewFromInt(200)},
		"zero price":      {Symbol: "BTCUSDT", To: decimal.NewFromInt(200)},
	}
	for name, opts := range cases {
		opts := opts
		t.Run(name, func(t *testing.T) {
			_, err := simulate(opts, horizons(t), time.Now(), zerolog.Nop())
			require.ErrorIs(t, err, errInvalidSimulation)
		})
	}
}

type fakeTelegram struct {
	mu      sync.Mutex
	methods []string
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.methods = append(f.methods, r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:])
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
}

func TestSimulateAlertDeliversTextAndChart(t *testing.T) {
	tg := &fakeTelegram{}
	srv := httptest.NewServer(http.HandlerFunc(tg.handler))
	defer srv.Close()

	cfg := testConfig()
	cfg.Telegram.APIBase = srv.URL
	cfg.Alerts.ChartEnabled = true

	a := NewApp(cfg, zerolog.Nop())
	err := a.SimulateAlert(context.Background(), SimulateOptions{
		Symbol: "SOLUSDT",
		From:   decimal.NewFromInt(100),
		To:     decimal.NewFromInt(110),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"sendMessage", "sendPhoto"}, tg.methods)
}

func TestRunRejectsBadHorizon(t *testing.T) {
	cfg := testConfig()
	cfg.Alerts.Thresholds = map[string]float64{"soon": 5}

	err := NewApp(cfg, zerolog.Nop()).Run(context.Background())
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestOpenStoreWithoutDSN(t *testing.T) {
	store, err := NewApp(testConfig(), zerolog.Nop()).openStore(context.Background())
	require.NoError(t, err)
	require.Nil(t, store)
}

func TestShowWithoutDatabase(t *testing.T) {
	err := NewApp(testConfig(), zerolog.Nop()).Show(context.Background(), ShowOptions{Limit: 10})
	require.ErrorContains(t, err, "database not configured")
}

func TestWriteAlertTable(t *testing.T) {
	errMsg := "telegram sendMessage: 429\nretry later"
	records := []storage.AlertRecord{
		{
			Symbol:         "BTCUSDT",
			Horizon:        "5m",
			PercentChange:  decimal.RequireFromString("6.0021"),
			ThresholdPct:   decimal.NewFromInt(5),
			Price:          decimal.RequireFromString("106"),
			ReferencePrice: decimal.RequireFromString("100"),
			TriggeredAt:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Delivered:      false,
			DeliveryError:  &errMsg,
		},
	}

	var buf bytes.Buffer
	writeAlertTable(&buf, records)
	out := buf.String()

	require.Contains(t, out, "BTCUSDT")
	require.Contains(t, out, "2024-03-01 12:00:00")
	require.Contains(t, out, "6.00")
	require.Contains(t, out, "retry later")
	require.NotContains(t, out, "429\nretry")
}

func TestChartWritesPNG(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		require.Equal(t, "5m", r.URL.Query().Get("interval"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1709294400000,"3400.0","3410.0","3390.0","3405.5","12.3",1709294699999,"41000.0",100,"6.1","20500.0","0"],
			[1709294700000,"3405.5","3420.0","3400.0","3418.0","9.8",1709294999999,"33000.0",80,"4.9","16500.0","0"],
			[1709295000000,"3418.0","3430.0","3410.0","3425.2","7.1",1709295299999,"24000.0",60,"3.5","12000.0","0"]
		]`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Binance.RESTBaseURL = srv.URL
	out := filepath.Join(t.TempDir(), "charts", "eth.png")

	err := NewApp(cfg, zerolog.Nop()).Chart(context.Background(), ChartOptions{
		Symbol:   "ethusdt",
		Interval: "5m",
		Points:   3,
		PNGPath:  out,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestChartRequiresSymbol(t *testing.T) {
	err := NewApp(testConfig(), zerolog.Nop()).Chart(context.Background(), ChartOptions{PNGPath: "x.png"})
	require.ErrorContains(t, err, "--symbol")
}
