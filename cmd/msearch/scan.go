package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/matsen/mediasearch/internal/scanner"
	"github.com/matsen/mediasearch/internal/service"
	"github.com/spf13/cobra"
)

var noProgress bool

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress progress output")
}

// ScanResult is the response for the scan command.
type ScanResult struct {
	Status          string  `json:"status"`
	Candidates      int     `json:"candidates"`
	Added           int     `json:"added"`
	Updated         int     `json:"updated"`
	Unchanged       int     `json:"unchanged"`
	Skipped         int     `json:"skipped"`
	Failed          int     `json:"failed"`
	Deleted         int     `json:"deleted"`
	DurationSeconds float64 `json:"duration_seconds"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Index the configured asset directories",
	Long: `Walk every assets_path, embed new and modified images and videos, and
remove entries whose files are gone. Unchanged files are not re-embedded.

Requires the CLIP embedding server to be running.`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := mustLoadConfig()
	svc := mustOpenService(ctx, cfg)
	defer svc.Close()

	mustCheckModel(ctx, svc)

	done := make(chan struct{})
	if humanOutput && !noProgress {
		go reportProgress(svc, cfg.Scan.ProgressRefresh, done)
	}

	stats, err := svc.RunScan(ctx)
	close(done)
	if humanOutput && !noProgress {
		fmt.Fprintf(os.Stderr, "\r%80s\r", "")
	}
	if err != nil {
		exitWithError(ExitError, "scanning: %v", err)
	}

	if humanOutput {
		fmt.Printf("Scan complete:\n")
		fmt.Printf("  Files seen: %d\n", stats.Candidates)
		fmt.Printf("  Added: %d  Updated: %d  Unchanged: %d\n", stats.Added, stats.Updated, stats.Unchanged)
		fmt.Printf("  Skipped: %d  Failed: %d  Removed: %d\n", stats.Skipped, stats.Failed, stats.Deleted)
		fmt.Printf("  Time elapsed: %s\n", formatDuration(stats.Duration))
		return nil
	}
	return outputJSON(newScanResult(stats))
}

func newScanResult(stats scanner.Stats) ScanResult {
	return ScanResult{
		Status:          "complete",
		Candidates:      stats.Candidates,
		Added:           stats.Added,
		Updated:         stats.Updated,
		Unchanged:       stats.Unchanged,
		Skipped:         stats.Skipped,
		Failed:          stats.Failed,
		Deleted:         stats.Deleted,
		DurationSeconds: stats.Duration.Seconds(),
	}
}

// reportProgress redraws a progress line on stderr until done is closed.
func reportProgress(svc *service.Service, every time.Duration, done <-chan struct{}) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fmt.Fprint(os.Stderr, "\r"+formatProgress(svc.Status()))
		}
	}
}

// formatProgress renders a scan status as a one-line progress bar.
func formatProgress(st scanner.Status) string {
	total := st.ScanningFiles + st.RemainFiles
	line := fmt.Sprintf("[%s] %d/%d (%.0f%%)", progressBar(st.Progress), st.ScanningFiles, total, st.Progress*100)
	if st.RemainTime != nil {
		line += fmt.Sprintf(" ~%s left", formatDuration(time.Duration(*st.RemainTime*float64(time.Second))))
	}
	return line
}

// mustCheckModel exits when the embedding server cannot be reached.
func mustCheckModel(ctx context.Context, svc *service.Service) {
	if err := svc.ModelAvailable(ctx); err != nil {
		exitWithError(ExitModelError, "%v\n\nStart the CLIP server or set model.url in the config.", err)
	}
}
