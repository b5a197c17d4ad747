package cli

import (
	"github.com/spf13/cobra"

	"github.com/Bilal2742/Crypto-bot/internal/app"
)

var (
	chartSymbol   string
	chartInterval string
	chartPoints   int
	chartPNGPath  string
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Export a recent kline chart for a symbol as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ChartOptions{
			Symbol:   chartSymbol,
			Interval: chartInterval,
			Points:   chartPoints,
			PNGPath:  chartPNGPath,
		}

		return getApp().Chart(cmd.Context(), opts)
	},
}

func init() {
	chartCmd.Flags().StringVar(&chartSymbol, "symbol", "", "Symbol to chart, e.g. BTCUSDT")
	chartCmd.Flags().StringVar(&chartInterval, "interval", "", "Kline interval (defaults to config)")
	chartCmd.Flags().IntVar(&chartPoints, "points", 0, "Number of klines (defaults to config)")
	chartCmd.Flags().StringVar(&chartPNGPath, "png", "", "Path to write PNG chart")
}
