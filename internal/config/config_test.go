package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("CHAT_ID", "-100200")
}

func TestLoadMissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("CHAT_ID", "42")

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingRequired)
}

func TestLoadMissingChat(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("CHAT_ID", "")

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingRequired)
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "token", cfg.Telegram.BotToken)
	require.Equal(t, "-100200", cfg.Telegram.ChatID)
	require.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	require.Equal(t, 2.0, cfg.Reconnect.BackoffBase)
	require.Equal(t, 300*time.Second, cfg.Reconnect.BackoffCap)
	require.Equal(t, 45*time.Second, cfg.Feed.ReceiveTimeout)
	require.Equal(t, map[string]float64{"5m": 5.0, "15m": 10.0, "1h": 50.0}, cfg.Alerts.Thresholds)
	require.Equal(t, []string{"USDT"}, cfg.Feed.QuoteAssets)
}

func TestLoadEnvOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("BOT_NAME", "Pump Radar")
	t.Setenv("PUMPWATCH_RECONNECT_MAX_ATTEMPTS", "3")
	t.Setenv("PUMPWATCH_ALERTS_COOLDOWN", "2m")
	t.Setenv("ALERT_THRESHOLDS", "5m=2.5, 30m=12")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "Pump Radar", cfg.Telegram.BotName)
	require.Equal(t, 3, cfg.Reconnect.MaxAttempts)
	require.Equal(t, 2*time.Minute, cfg.Alerts.Cooldown)
	require.Equal(t, map[string]float64{"5m": 2.5, "30m": 12}, cfg.Alerts.Thresholds)
}

func TestLoadConfigFile(t *testing.T) {
	setCredentials(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
reconnect:
  max_attempts: 4
  backoff_cap: 1m
feed:
  symbols: [BTCUSDT, ETHUSDT]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Reconnect.MaxAttempts)
	require.Equal(t, time.Minute, cfg.Reconnect.BackoffCap)
	require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Feed.Symbols)
}

func TestValidateRejectsBadBackoff(t *testing.T) {
	setCredentials(t)
	t.Setenv("PUMPWATCH_RECONNECT_BACKOFF_CAP", "100ms")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestParseThresholds(t *testing.T) {
	got, err := ParseThresholds("5m=5,1h=50")
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"5m": 5, "1h": 50}, got)

	_, err = ParseThresholds("5m")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = ParseThresholds("5m=abc")
	require.ErrorIs(t, err, ErrInvalid)
}
