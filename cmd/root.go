package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/wallet-notifier/cmd/worker"
	"github.com/jmehdipour/wallet-notifier/internal/config"
	"github.com/jmehdipour/wallet-notifier/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "wallet-notifier",
		Short: "Wallet email notification service",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; real env vars win over it
			_ = godotenv.Load()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config and initialises the global logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
