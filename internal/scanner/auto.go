package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/matsen/mediasearch/internal/config"
)

// AutoScanner starts a pass whenever a tick lands inside the daily window
// and no pass is running.
type AutoScanner struct {
	scanner  *Scanner
	start    config.TimeOfDay
	end      config.TimeOfDay
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// AutoOption configures an AutoScanner.
type AutoOption func(*AutoScanner)

// WithAutoClock replaces time.Now when deciding whether the window is open.
func WithAutoClock(now func() time.Time) AutoOption {
	return func(a *AutoScanner) {
		a.now = now
	}
}

// WithAutoLogger sets the logger.
func WithAutoLogger(l *slog.Logger) AutoOption {
	return func(a *AutoScanner) {
		a.logger = l
	}
}

// NewAutoScanner checks the window [start, end) every interval.
func NewAutoScanner(s *Scanner, start, end config.TimeOfDay, interval time.Duration, opts ...AutoOption) *AutoScanner {
	a := &AutoScanner{
		scanner:  s,
		start:    start,
		end:      end,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run checks the window immediately and on every tick until ctx is done.
// Passes it starts are bound to ctx.
func (a *AutoScanner) Run(ctx context.Context) error {
	a.logger.Info("auto scan enabled", "start", a.start, "end", a.end, "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.Check(ctx)
		}
	}
}

// Check starts a pass if the clock is inside the window. It reports whether
// a pass was started.
func (a *AutoScanner) Check(ctx context.Context) bool {
	if !config.InWindow(config.At(a.now()), a.start, a.end) {
		return false
	}
	if !a.scanner.Start(ctx) {
		return false
	}
	a.logger.Info("auto scan started")
	return true
}
