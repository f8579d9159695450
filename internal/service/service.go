// Package service assembles the store, embedding client, scanner and search
// engine into the operations exposed to callers.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matsen/mediasearch/internal/config"
	"github.com/matsen/mediasearch/internal/embedding"
	"github.com/matsen/mediasearch/internal/media"
	"github.com/matsen/mediasearch/internal/scanner"
	"github.com/matsen/mediasearch/internal/search"
	"github.com/matsen/mediasearch/internal/storage"
)

// ErrAutoScanDisabled is returned by RunAutoScan when auto_scan is off.
var ErrAutoScanDisabled = errors.New("auto scan is disabled")

// StartResult is the outcome of StartScan.
type StartResult string

const (
	StartStarted        StartResult = "started"
	StartAlreadyRunning StartResult = "already scanning"
)

// Service is the single entry point for scanning and searching. The search
// operations are promoted from the embedded Engine.
type Service struct {
	*search.Engine

	cfg      *config.Config
	store    storage.AssetStore
	provider embedding.Provider
	scanner  *scanner.Scanner
	auto     *scanner.AutoScanner
	logger   *slog.Logger
}

// Open connects to the configured store and embedding server and builds a Service.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider := embedding.NewClipProvider(
		embedding.WithBaseURL(cfg.Model.URL),
		embedding.WithModel(cfg.Model.Name),
		embedding.WithDimensions(cfg.Model.Dimensions),
		embedding.WithInputSize(cfg.Model.InputSize),
		embedding.WithTimeout(cfg.Model.Timeout),
		embedding.WithRateLimit(cfg.Model.RequestsPerSecond),
	)

	svc, err := New(ctx, cfg, store, provider, media.NewFFmpeg(), logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return svc, nil
}

// OpenStore opens the asset store selected by cfg.Storage.Driver.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.AssetStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := storage.OpenDB(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, nil
	case config.DriverPostgres:
		pg, err := storage.OpenPostgres(ctx, cfg.Storage.PostgresURL, cfg.Model.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Storage.Driver)
	}
}

// New builds a Service from its collaborators. The scanner clears the search
// cache after every completed pass.
func New(ctx context.Context, cfg *config.Config, store storage.AssetStore, provider embedding.Provider, frames media.FrameExtractor, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := scanner.OptionsFromConfig(cfg.Scan)

	s := &Service{
		cfg:      cfg,
		store:    store,
		provider: provider,
		logger:   logger,
	}
	s.Engine = search.NewEngine(store, provider, search.Options{
		CacheSize: cfg.Search.CacheSize,
		Limits:    opts.Limits,
	}, search.WithLogger(logger.With("component", "search")))

	s.scanner = scanner.New(store, provider, frames, opts,
		scanner.WithLogger(logger.With("component", "scanner")),
		scanner.WithOnComplete(func(scanner.Stats) { s.CleanCache() }),
	)

	if cfg.Scan.AutoScan {
		start, err := config.ParseTimeOfDay(cfg.Scan.AutoScanStartTime)
		if err != nil {
			return nil, err
		}
		end, err := config.ParseTimeOfDay(cfg.Scan.AutoScanEndTime)
		if err != nil {
			return nil, err
		}
		s.auto = scanner.NewAutoScanner(s.scanner, start, end, cfg.Scan.AutoScanCheckInterval,
			scanner.WithAutoLogger(logger.With("component", "autoscan")))
	}

	if err := s.scanner.RefreshTotals(ctx); err != nil {
		return nil, fmt.Errorf("reading asset totals: %w", err)
	}
	return s, nil
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}

// ModelAvailable reports whether the embedding server answers its health
// check. Providers without a health check are assumed available.
func (s *Service) ModelAvailable(ctx context.Context) error {
	checker, ok := s.provider.(interface {
		IsAvailable(context.Context) error
	})
	if !ok {
		return nil
	}
	return checker.IsAvailable(ctx)
}

// StartScan starts a background pass unless one is running.
func (s *Service) StartScan(ctx context.Context) StartResult {
	if s.scanner.Start(ctx) {
		return StartStarted
	}
	return StartAlreadyRunning
}

// RunScan performs a pass in the calling goroutine.
func (s *Service) RunScan(ctx context.Context) (scanner.Stats, error) {
	return s.scanner.Run(ctx)
}

// WaitScan blocks until the running pass, if any, finishes.
func (s *Service) WaitScan() {
	s.scanner.Wait()
}

// Status returns the current scan state.
func (s *Service) Status() scanner.Status {
	return s.scanner.Status()
}

// RunAutoScan runs the auto-scan scheduler until ctx is done.
func (s *Service) RunAutoScan(ctx context.Context) error {
	if s.auto == nil {
		return ErrAutoScanDisabled
	}
	return s.auto.Run(ctx)
}

// Search runs req, applying the configured result cap when req has none.
func (s *Service) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	if req.MaxResults <= 0 {
		req.MaxResults = s.cfg.Search.MaxResultNum
	}
	return s.Engine.Search(ctx, req)
}

// DefaultRequest returns a request of type t carrying the configured thresholds.
func (s *Service) DefaultRequest(t search.Type) search.Request {
	return search.Request{
		Type:              t,
		PositiveThreshold: s.cfg.Search.PositiveThreshold,
		NegativeThreshold: s.cfg.Search.NegativeThreshold,
		ImageThreshold:    s.cfg.Search.ImageThreshold,
		MaxResults:        s.cfg.Search.MaxResultNum,
	}
}
