package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"ReviewAnalyzer/internal/app"
	"ReviewAnalyzer/internal/config"
	"ReviewAnalyzer/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	userID     int64
}

var rootCmd = &cobra.Command{
	Use:           "reviewanalyzer",
	Short:         "Sentiment scores for irecommend.ru product reviews",
	Long:          "reviewanalyzer fetches a product review page, classifies every review it can find\nand prints the share of positive, neutral and negative reviews with a 1-5 rating.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "YAML config file (overrides REVIEW_ANALYZER_CONFIG)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.Int64Var(&rootFlags.userID, "user-id", 1, "History owner")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.Version = version
}

func loadConfig() (config.Config, error) {
	var cfg config.Config
	if rootFlags.configPath != "" {
		var err error
		if cfg, err = config.LoadFrom(rootFlags.configPath); err != nil {
			return cfg, err
		}
	} else {
		cfg = config.Load()
	}
	if rootFlags.logLevel != "" {
		cfg.Logging.Level = rootFlags.logLevel
	}
	return cfg, nil
}

// openApp loads configuration, builds the application and prepares its store.
func openApp(ctx context.Context) (*app.Application, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Close()
		return nil, nil, fmt.Errorf("start: %w", err)
	}
	return application, logger, nil
}
