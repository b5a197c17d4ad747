package alerting

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Bilal2742/Crypto-bot/internal/evaluator"
)

// RenderAlert formats an alert as Telegram HTML.
func RenderAlert(botName string, alert evaluator.Alert) string {
	icon := "🚀"
	verb := "PUMP"
	if alert.PercentChange.IsNegative() {
		icon = "📉"
		verb = "DUMP"
	}

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b>\n", icon, html.EscapeString(alert.Symbol), verb))
	b.WriteString(fmt.Sprintf("Change: <b>%s%%</b> in %s (threshold %s%%)\n",
		signed(alert.PercentChange, 2), alert.Horizon, alert.Threshold.StringFixed(2)))
	b.WriteString(fmt.Sprintf("Price: %s (was %s)\n", formatPrice(alert.Price), formatPrice(alert.ReferencePrice)))
	b.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.TriggeredAt.UTC().Format(time.DateTime)))
	if botName != "" {
		b.WriteString(fmt.Sprintf("<i>%s</i>", html.EscapeString(botName)))
	}
	return b.String()
}

// RenderCaption is the short line attached to an alert chart.
func RenderCaption(alert evaluator.Alert) string {
	return fmt.Sprintf("%s %s%% / %s", html.EscapeString(alert.Symbol), signed(alert.PercentChange, 2), alert.Horizon)
}

// RenderAnnounce is sent once on startup.
func RenderAnnounce(botName string, horizons []evaluator.Horizon) string {
	parts := make([]string, 0, len(horizons))
	for _, h := range horizons {
		parts = append(parts, fmt.Sprintf("%s ≥ %s%%", h.Label, h.Threshold.String()))
	}
	name := botName
	if name == "" {
		name = "pumpwatch"
	}
	return fmt.Sprintf("✅ <b>%s</b> online\nWatching: %s", html.EscapeString(name), strings.Join(parts, ", "))
}

func signed(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

// formatPrice keeps significant digits for sub-cent assets.
func formatPrice(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return d.StringFixed(2)
	case d.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.StringFixed(4)
	default:
		return d.StringFixed(8)
	}
}
