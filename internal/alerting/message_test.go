package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
)

func sampleAlert(change string) evaluator.Alert {
	return evaluator.Alert{
		Symbol:         "BTCUSDT",
		Horizon:        "5m",
		Window:         5 * time.Minute,
		PercentChange:  decimal.RequireFromString(change),
		Threshold:      decimal.NewFromInt(5),
		Price:          decimal.RequireFromString("67840.12"),
		ReferencePrice: decimal.RequireFromString("64000"),
		TriggeredAt:    time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC),
	}
}

func TestRenderAlertPump(t *testing.T) {
	msg := RenderAlert("Crypto Pump Bot", sampleAlert("6"))

	require.True(t, strings.HasPrefix(msg, "🚀 <b>BTCUSDT PUMP</b>"))
	require.Contains(t, msg, "<b>+6.00%</b> in 5m (threshold 5.00%)")
	require.Contains(t, msg, "Price: 67840.12 (was 64000.00)")
	require.Contains(t, msg, "2024-03-01 12:05:00 UTC")
	require.Contains(t, msg, "<i>Crypto Pump Bot</i>")
}

func TestRenderAlertDump(t *testing.T) {
	msg := RenderAlert("", sampleAlert("-7.5"))

	require.True(t, strings.HasPrefix(msg, "📉 <b>BTCUSDT DUMP</b>"))
	require.Contains(t, msg, "<b>-7.50%</b>")
	require.NotContains(t, msg, "<i>")
}

func TestRenderAnnounceEscapesName(t *testing.T) {
	horizons, err := evaluator.ParseHorizons(map[string]float64{"5m": 5, "1h": 50})
	require.NoError(t, err)

	msg := RenderAnnounce("<Pump>", horizons)

	require.Contains(t, msg, "&lt;Pump&gt;")
	require.Contains(t, msg, "5m ≥ 5%, 1h ≥ 50%")
}

func TestFormatPriceSmallAssets(t *testing.T) {
	require.Equal(t, "0.00001234", formatPrice(decimal.RequireFromString("0.00001234")))
	require.Equal(t, "1.5000", formatPrice(decimal.RequireFromString("1.5")))
}
