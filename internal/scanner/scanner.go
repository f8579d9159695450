// Package scanner keeps the asset store in sync with the configured
// directories: it finds new and changed images and videos, embeds them, and
// removes records for files that are gone.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/matsen/mediasearch/internal/config"
	"github.com/matsen/mediasearch/internal/embedding"
	"github.com/matsen/mediasearch/internal/media"
	"github.com/matsen/mediasearch/internal/storage"
)

// ErrAlreadyScanning is returned by Run while another pass is in progress.
var ErrAlreadyScanning = errors.New("scan already in progress")

// Options controls what a pass indexes.
type Options struct {
	Roots           []string
	SkipPaths       []string
	IgnoreStrings   []string // lowercase
	ImageExtensions []string // lowercase, with dot
	VideoExtensions []string // lowercase, with dot

	FrameInterval int
	BatchSize     int
	Limits        media.Limits

	LogInterval     int
	ProgressRefresh time.Duration
}

// OptionsFromConfig builds scan options from the scan section of the config.
func OptionsFromConfig(c config.ScanConfig) Options {
	return Options{
		Roots:           c.AssetsPaths,
		SkipPaths:       c.SkipPaths,
		IgnoreStrings:   c.IgnoreStrings,
		ImageExtensions: c.ImageExtensions,
		VideoExtensions: c.VideoExtensions,
		FrameInterval:   c.FrameInterval,
		BatchSize:       c.ScanProcessBatchSize,
		Limits: media.Limits{
			MinWidth:  c.ImageMinWidth,
			MinHeight: c.ImageMinHeight,
			MaxPixels: int64(c.ImageMaxPixels),
		},
		LogInterval:     c.LogInterval,
		ProgressRefresh: c.ProgressRefresh,
	}
}

// Status is a point-in-time snapshot of the scan state.
type Status struct {
	IsScanning       bool     `json:"status"`
	TotalImages      int      `json:"total_images"`
	TotalVideos      int      `json:"total_videos"`
	TotalVideoFrames int      `json:"total_video_frames"`
	ScanningFiles    int      `json:"scanning_files"`
	RemainFiles      int      `json:"remain_files"`
	CurrentFile      string   `json:"current_file,omitempty"`
	Progress         float64  `json:"progress"`
	RemainTime       *float64 `json:"remain_time,omitempty"` // seconds
}

// Stats summarizes one completed pass.
type Stats struct {
	Candidates int           `json:"candidates"`
	Added      int           `json:"added"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Deleted    int           `json:"deleted"`
	Duration   time.Duration `json:"duration"`
}

// Scanner runs scan passes, at most one at a time.
type Scanner struct {
	store    storage.AssetStore
	provider embedding.Provider
	frames   media.FrameExtractor
	opts     Options

	logger     *slog.Logger
	now        func() time.Time
	onComplete func(Stats)

	mu          sync.RWMutex
	status      Status
	total       int
	started     time.Time
	lastRefresh time.Time
	done        chan struct{}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = l
	}
}

// WithClock replaces time.Now for progress and ETA computation.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) {
		s.now = now
	}
}

// WithOnComplete registers a hook called after every completed pass.
func WithOnComplete(fn func(Stats)) Option {
	return func(s *Scanner) {
		s.onComplete = fn
	}
}

// New creates a scanner writing to store.
func New(store storage.AssetStore, provider embedding.Provider, frames media.FrameExtractor, opts Options, options ...Option) *Scanner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 1
	}
	s := &Scanner{
		store:    store,
		provider: provider,
		frames:   frames,
		opts:     opts,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Start begins a pass in the background. It returns false, without queueing,
// if a pass is already running.
func (s *Scanner) Start(ctx context.Context) bool {
	if !s.begin() {
		return false
	}
	go s.pass(ctx)
	return true
}

// Run performs a pass in the calling goroutine.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	if !s.begin() {
		return Stats{}, ErrAlreadyScanning
	}
	return s.pass(ctx)
}

// Wait blocks until the running pass, if any, finishes.
func (s *Scanner) Wait() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Scanning reports whether a pass is running.
func (s *Scanner) Scanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.IsScanning
}

// Status returns a snapshot of the scan state.
func (s *Scanner) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.RemainTime != nil {
		rt := *st.RemainTime
		st.RemainTime = &rt
	}
	return st
}

// RefreshTotals loads the asset totals from the store. Ignored while scanning.
func (s *Scanner) RefreshTotals(ctx context.Context) error {
	c, err := s.store.Counts(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.IsScanning {
		s.setTotals(c)
	}
	return nil
}

// begin is the check-and-set that admits one pass at a time. Totals carry
// over from the previous pass until this one completes.
func (s *Scanner) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsScanning {
		return false
	}
	s.status = Status{
		IsScanning:       true,
		TotalImages:      s.status.TotalImages,
		TotalVideos:      s.status.TotalVideos,
		TotalVideoFrames: s.status.TotalVideoFrames,
	}
	s.total = 0
	s.started = s.now()
	s.lastRefresh = time.Time{}
	s.done = make(chan struct{})
	return true
}

// finish marks the pass complete, keeping the final progress values, and
// returns the channel to close once completion hooks have run.
func (s *Scanner) finish(c *storage.Counts) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.IsScanning = false
	s.status.CurrentFile = ""
	if c != nil {
		s.setTotals(*c)
	}
	return s.done
}

func (s *Scanner) setTotals(c storage.Counts) {
	s.status.TotalImages = c.Images
	s.status.TotalVideos = c.Videos
	s.status.TotalVideoFrames = c.VideoFrames
}
