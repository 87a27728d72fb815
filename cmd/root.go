package cmd

import (
	"log/slog"
	"os"

	"github.com/bidhouse/server/bidhouse"
	"github.com/bidhouse/server/bidhouse/logger"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "bidhouse",
	Short:         "Auction bid settlement engine",
	Version:       version + " (" + commit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "path to config")
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.LogError("Command failed", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and installs the configured logger.
func loadConfig() (*bidhouse.Config, error) {
	cfg, err := bidhouse.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg bidhouse.LogConfig) {
	if cfg.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
		})))
		return
	}
	logger.Setup("BidHouse", cfg.Level)
}
