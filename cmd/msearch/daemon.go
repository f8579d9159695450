package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matsen/mediasearch/internal/config"
	"github.com/matsen/mediasearch/internal/service"
	"github.com/spf13/cobra"
)

var scanNow bool

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().BoolVar(&scanNow, "scan-now", false, "Start a scan immediately instead of waiting for the window")
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled scans",
	Long: `Stay in the foreground and start a scan whenever the clock is inside
the auto_scan_start_time..auto_scan_end_time window. Requires auto_scan: true.
Stops on SIGINT or SIGTERM, cancelling any running scan.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := mustLoadConfig()
	if err := checkDaemonConfig(cfg); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	logger := newLogger(cfg)
	svc := mustOpenService(ctx, cfg)
	defer svc.Close()

	mustCheckModel(ctx, svc)

	if scanNow {
		logger.Info("scan requested at startup", "result", svc.StartScan(ctx))
	}

	logger.Info("auto scan running",
		"start", cfg.Scan.AutoScanStartTime,
		"end", cfg.Scan.AutoScanEndTime,
		"check_interval", cfg.Scan.AutoScanCheckInterval)

	err := svc.RunAutoScan(ctx)
	svc.WaitScan()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

// checkDaemonConfig rejects configs the daemon cannot schedule, before any
// store is opened or scan started.
func checkDaemonConfig(cfg *config.Config) error {
	if !cfg.Scan.AutoScan {
		return fmt.Errorf("%w: set auto_scan: true, or use 'msearch scan' for a one-off pass", service.ErrAutoScanDisabled)
	}
	return nil
}
