package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bilal2742/Crypto-bot/internal/app"
	"github.com/Bilal2742/Crypto-bot/internal/config"
	"github.com/Bilal2742/Crypto-bot/internal/logging"
)

var (
	cfgFile     string
	logLevel    string
	appHandle   *app.App
	closeLogger func() error
)

var rootCmd = &cobra.Command{
	Use:           "pumpwatch",
	Short:         "Watch exchange tickers and push pump/dump alerts to Telegram",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger, closer, err := logging.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		closeLogger = closer
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command. Any error exits with status 1.
func Execute() {
	err := rootCmd.Execute()
	if closeLogger != nil {
		_ = closeLogger()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
