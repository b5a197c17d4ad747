package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/Bilal2742/Crypto-bot/internal/storage"
)

// Show prints recently persisted alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show alerts")
	}
	defer store.Close()

	var records []storage.AlertRecord
	if opts.Symbol != "" {
		records, err = store.ListSymbolAlerts(ctx, strings.ToUpper(opts.Symbol), opts.Limit)
	} else {
		records, err = store.ListRecentAlerts(ctx, opts.Limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writeAlertTable(os.Stdout, records)
	return nil
}

func writeAlertTable(w io.Writer, records []storage.AlertRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time (UTC)", "Symbol", "Horizon", "Change%", "Threshold%", "Price", "Reference", "Delivered", "Error"})
	table.SetAutoWrapText(false)

	for _, r := range records {
		errMsg := ""
		if r.DeliveryError != nil {
			errMsg = sanitizeInline(*r.DeliveryError)
		}
		table.Append([]string{
			r.TriggeredAt.UTC().Format(time.DateTime),
			r.Symbol,
			r.Horizon,
			r.PercentChange.StringFixed(2),
			r.ThresholdPct.StringFixed(2),
			r.Price.String(),
			r.ReferencePrice.String(),
			fmt.Sprintf("%t", r.Delivered),
			errMsg,
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "", "", "TOTAL", fmt.Sprintf("%d", len(records))})
	table.Render()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
