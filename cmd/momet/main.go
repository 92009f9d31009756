// Package main is the entry point of the momentum screener CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/momet-screener/internal/config"
)

var (
	cfgPath string
	cfg     *config.Config
	log     *zap.Logger
)

func main() {
	// A missing .env file is fine; environment variables may come from the
	// host directly.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "momet",
		Short: "Daily-bar momentum screener and backtester",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig(cfgPath)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			log, err = newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "Path to the configuration file")

	root.AddCommand(
		newMigrateCmd(),
		newFetchCmd(),
		newImportCSVCmd(),
		newComputeCmd(),
		newBacktestCmd(),
		newServeCmd(),
		newNotifyCmd(),
		newPruneLogsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
