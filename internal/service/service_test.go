package service

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matsen/mediasearch/internal/config"
	"github.com/matsen/mediasearch/internal/embedding/embeddingtest"
	"github.com/matsen/mediasearch/internal/logging"
	"github.com/matsen/mediasearch/internal/media/mediatest"
	"github.com/matsen/mediasearch/internal/search"
)

var red = color.NRGBA{R: 255, A: 255}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Scan.AssetsPaths = []string{t.TempDir()}
	cfg.Scan.SkipPaths = nil
	cfg.Scan.IgnoreStrings = nil
	cfg.Scan.ImageExtensions = []string{".png"}
	cfg.Storage.Path = filepath.Join(t.TempDir(), "assets.db")
	cfg.Model.Dimensions = 3
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *embeddingtest.Provider, *mediatest.Extractor) {
	t.Helper()
	ctx := context.Background()
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	provider := embeddingtest.New(3)
	provider.Texts["red"] = []float32{1, 0, 0}
	extractor := mediatest.NewExtractor()

	svc, err := New(ctx, cfg, store, provider, extractor, logging.Discard())
	if err != nil {
		store.Close()
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc, provider, extractor
}

func TestService_StartScan(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scan.VideoExtensions = []string{".mp4"}
	svc, _, extractor := newTestService(t, cfg)
	root := cfg.Scan.AssetsPaths[0]

	mediatest.WriteImage(t, root, "a.png", 80, 80, red)
	extractor.Block = make(chan struct{})
	writeFile(t, filepath.Join(root, "v.mp4"))
	extractor.SetFrames(filepath.Join(root, "v.mp4"), red)

	ctx := context.Background()
	if got := svc.StartScan(ctx); got != StartStarted {
		t.Fatalf("StartScan() = %q, want %q", got, StartStarted)
	}
	if got := svc.StartScan(ctx); got != StartAlreadyRunning {
		t.Errorf("second StartScan() = %q, want %q", got, StartAlreadyRunning)
	}

	close(extractor.Block)
	svc.WaitScan()

	st := svc.Status()
	if st.IsScanning || st.TotalImages != 1 || st.TotalVideos != 1 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestService_ScanClearsSearchCache(t *testing.T) {
	cfg := testConfig(t)
	svc, provider, _ := newTestService(t, cfg)
	ctx := context.Background()
	root := cfg.Scan.AssetsPaths[0]

	req := svc.DefaultRequest(search.TypeTextToImage)
	req.Positive = "red"

	results, err := svc.Search(ctx, req)
	if err != nil || len(results) != 0 {
		t.Fatalf("Search() on empty store = %+v, %v", results, err)
	}

	mediatest.WriteImage(t, root, "a.png", 80, 80, red)
	if _, err := svc.RunScan(ctx); err != nil {
		t.Fatalf("RunScan() error = %v", err)
	}

	results, err = svc.Search(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("Search() after scan returned %d results, want 1 (stale cache?)", len(results))
	}
	if provider.TextCalls() != 2 {
		t.Errorf("TextCalls() = %d, want 2", provider.TextCalls())
	}

	// A repeat query is served from the cache again.
	if _, err := svc.Search(ctx, req); err != nil {
		t.Fatal(err)
	}
	if provider.TextCalls() != 2 {
		t.Errorf("TextCalls() = %d after repeat, want 2", provider.TextCalls())
	}
}

func TestService_PromotedSearches(t *testing.T) {
	cfg := testConfig(t)
	svc, _, _ := newTestService(t, cfg)
	ctx := context.Background()
	mediatest.WriteImage(t, cfg.Scan.AssetsPaths[0], "cat.png", 80, 80, red)
	if _, err := svc.RunScan(ctx); err != nil {
		t.Fatal(err)
	}

	results, err := svc.SearchImageByPath(ctx, "cat")
	if err != nil || len(results) != 1 {
		t.Errorf("SearchImageByPath() = %+v, %v", results, err)
	}
	score, ok, err := svc.MatchTextAndImage(ctx, "red", search.ByID(1))
	if err != nil || !ok || score < 99 {
		t.Errorf("MatchTextAndImage() = %v, %v, %v", score, ok, err)
	}
}

func TestService_SearchAppliesMaxResults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.MaxResultNum = 2
	svc, _, _ := newTestService(t, cfg)
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		mediatest.WriteImage(t, cfg.Scan.AssetsPaths[0], name, 80, 80, red)
	}
	if _, err := svc.RunScan(ctx); err != nil {
		t.Fatal(err)
	}

	results, err := svc.Search(ctx, search.Request{Type: search.TypePathToImage, Positive: ".png"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want max_result_num 2", len(results))
	}
}

func TestService_TotalsLoadedOnStart(t *testing.T) {
	cfg := testConfig(t)
	svc, _, _ := newTestService(t, cfg)
	mediatest.WriteImage(t, cfg.Scan.AssetsPaths[0], "a.png", 80, 80, red)
	if _, err := svc.RunScan(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc.Close()

	reopened, _, _ := newTestService(t, cfg)
	if st := reopened.Status(); st.TotalImages != 1 {
		t.Errorf("TotalImages after reopen = %d, want 1", st.TotalImages)
	}
}

func TestService_AutoScan(t *testing.T) {
	cfg := testConfig(t)
	svc, _, _ := newTestService(t, cfg)
	if err := svc.RunAutoScan(context.Background()); !errors.Is(err, ErrAutoScanDisabled) {
		t.Errorf("RunAutoScan() error = %v, want ErrAutoScanDisabled", err)
	}

	cfg = testConfig(t)
	cfg.Scan.AutoScan = true
	cfg.Scan.AutoScanStartTime = "0:00"
	cfg.Scan.AutoScanEndTime = "0:00"
	cfg.Scan.AutoScanCheckInterval = time.Hour
	svc, _, _ = newTestService(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.RunAutoScan(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("RunAutoScan() error = %v, want deadline exceeded", err)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "mongo"
	if _, err := OpenStore(context.Background(), cfg); !errors.Is(err, config.ErrUnknownDriver) {
		t.Errorf("OpenStore() error = %v, want ErrUnknownDriver", err)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestService_ModelAvailable(t *testing.T) {
	svc, _, _ := newTestService(t, testConfig(t))
	if err := svc.ModelAvailable(context.Background()); err != nil {
		t.Errorf("ModelAvailable() with fake provider = %v, want nil", err)
	}
}
