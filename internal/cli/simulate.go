package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Bilal2742/Crypto-bot/internal/app"
)

var (
	simulateSymbol  string
	simulateFrom    float64
	simulateTo      float64
	simulateHorizon string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a price move and send the resulting alert",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateFrom <= 0 || simulateTo <= 0 {
			return errors.New("--from and --to must be greater than zero")
		}

		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Symbol:  simulateSymbol,
			From:    decimal.NewFromFloat(simulateFrom),
			To:      decimal.NewFromFloat(simulateTo),
			Horizon: simulateHorizon,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "BTCUSDT", "Symbol to simulate")
	simulateCmd.Flags().Float64Var(&simulateFrom, "from", 0, "Starting price")
	simulateCmd.Flags().Float64Var(&simulateTo, "to", 0, "Final price")
	simulateCmd.Flags().StringVar(&simulateHorizon, "horizon", "", "Horizon label such as 5m (defaults to the shortest)")
}
