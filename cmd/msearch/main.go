// Package main provides the msearch CLI entry point.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/matsen/mediasearch/internal/config"
	"github.com/matsen/mediasearch/internal/logging"
	"github.com/matsen/mediasearch/internal/service"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "msearch",
	Short: "Natural-language search over local photos and videos",
	Long: `msearch indexes the images and videos under the configured asset
directories with a CLIP embedding server, then searches them by text, by
example image, or by path.

All commands output JSON by default for easy integration with other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $MSEARCH_CONFIG or ./config.yml)")
	rootCmd.Version = Version
}

// mustLoadConfig loads the config file, or exits with a config error.
func mustLoadConfig() *config.Config {
	cfg, err := config.Load(config.ResolvePath(configPath))
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// newLogger returns the stderr logger at the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, !isTerminal(os.Stderr))
}

// mustOpenService opens the store and embedding client named by cfg.
func mustOpenService(ctx context.Context, cfg *config.Config) *service.Service {
	svc, err := service.Open(ctx, cfg, newLogger(cfg))
	if err != nil {
		exitWithError(ExitConfigError, "opening service: %v", err)
	}
	return svc
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
