package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Bilal2742/Crypto-bot/internal/config"
)

func TestUnconfiguredStore(t *testing.T) {
	ctx := context.Background()
	var store *Store

	_, err := store.InsertAlert(ctx, AlertRecord{Symbol: "BTCUSDT"})
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = store.ListRecentAlerts(ctx, 10)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = store.DeleteAlertsBefore(ctx, time.Now())
	require.ErrorIs(t, err, ErrNotConfigured)

	_, _, err = NewStore(nil).TryAdvisoryLock(ctx, 1)
	require.ErrorIs(t, err, ErrNotConfigured)

	store.Close()
}

func TestOpenWithoutDSN(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewPoolRejectsBadDSN(t *testing.T) {
	_, err := NewPool(context.Background(), config.DatabaseConfig{DSN: "postgres://%zz"})
	require.Error(t, err)
}

func TestParseDecimal(t *testing.T) {
	d, err := parseDecimal("price", "64050.50")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("64050.5")))

	_, err = parseDecimal("price", "n/a")
	require.ErrorContains(t, err, "parse price")
}

func TestSchemaDeclaresAlertsTable(t *testing.T) {
	require.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS alerts")
	require.Contains(t, schemaSQL, "UNIQUE (symbol, horizon, triggered_at)")
}

func TestAlertDirection(t *testing.T) {
	require.Equal(t, "down", AlertRecord{PercentChange: decimal.NewFromInt(-3)}.Direction())
	require.Equal(t, "up", AlertRecord{PercentChange: decimal.NewFromInt(3)}.Direction())
}
