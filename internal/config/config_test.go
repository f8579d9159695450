package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad start time", func(c *Config) { c.Scan.AutoScanStartTime = "25:00" }, true},
		{"bad end time", func(c *Config) { c.Scan.AutoScanEndTime = "noon" }, true},
		{"zero frame interval", func(c *Config) { c.Scan.FrameInterval = 0 }, true},
		{"zero batch size", func(c *Config) { c.Scan.ScanProcessBatchSize = 0 }, true},
		{"negative cache size", func(c *Config) { c.Search.CacheSize = -1 }, true},
		{"zero cache size allowed", func(c *Config) { c.Search.CacheSize = 0 }, false},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, true},
		{"postgres driver", func(c *Config) { c.Storage.Driver = DriverPostgres }, false},
		{"auto scan without interval", func(c *Config) {
			c.Scan.AutoScan = true
			c.Scan.AutoScanCheckInterval = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_UnknownDriverIsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "mysql"
	if err := cfg.Validate(); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Validate() error = %v, want ErrUnknownDriver", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yml")
	content := `
scan:
  assets_paths: ["/data/photos", "~/videos"]
  image_extensions: ["JPG", ".Png"]
  ignore_strings: ["Thumb"]
  frame_interval: 4
  scan_process_batch_size: 8
  auto_scan_start_time: "23:00"
  auto_scan_end_time: "6:30"
  auto_scan_check_interval: 30s
search:
  cache_size: 10
  positive_threshold: 20
storage:
  driver: sqlite
  path: /var/lib/msearch/assets.db
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	if got, want := cfg.Scan.AssetsPaths[1], filepath.Join(home, "videos"); got != want {
		t.Errorf("AssetsPaths[1] = %q, want %q", got, want)
	}
	if got := cfg.Scan.ImageExtensions; len(got) != 2 || got[0] != ".jpg" || got[1] != ".png" {
		t.Errorf("ImageExtensions = %v, want [.jpg .png]", got)
	}
	if got := cfg.Scan.IgnoreStrings[0]; got != "thumb" {
		t.Errorf("IgnoreStrings[0] = %q, want thumb", got)
	}
	if cfg.Scan.FrameInterval != 4 {
		t.Errorf("FrameInterval = %d, want 4", cfg.Scan.FrameInterval)
	}
	if cfg.Scan.AutoScanCheckInterval != 30*time.Second {
		t.Errorf("AutoScanCheckInterval = %v, want 30s", cfg.Scan.AutoScanCheckInterval)
	}
	if cfg.Search.CacheSize != 10 {
		t.Errorf("CacheSize = %d, want 10", cfg.Search.CacheSize)
	}
	// Unset keys keep their defaults.
	if cfg.Search.NegativeThreshold != 36 {
		t.Errorf("NegativeThreshold = %v, want default 36", cfg.Search.NegativeThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("scan: [not, a, map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestLoad_EnvFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ASSETS_PATH", "/a, /b")
	t.Setenv("FRAME_INTERVAL", "5")
	t.Setenv("AUTO_SCAN", "True")
	t.Setenv("IMAGE_THRESHOLD", "70.5")
	t.Setenv("MSEARCH_DB_PATH", "/tmp/x.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Scan.AssetsPaths; len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Errorf("AssetsPaths = %v, want [/a /b]", got)
	}
	if cfg.Scan.FrameInterval != 5 {
		t.Errorf("FrameInterval = %d, want 5", cfg.Scan.FrameInterval)
	}
	if !cfg.Scan.AutoScan {
		t.Error("AutoScan = false, want true")
	}
	if cfg.Search.ImageThreshold != 70.5 {
		t.Errorf("ImageThreshold = %v, want 70.5", cfg.Search.ImageThreshold)
	}
	if cfg.Storage.Path != "/tmp/x.db" {
		t.Errorf("Storage.Path = %q, want /tmp/x.db", cfg.Storage.Path)
	}
}

func TestLoad_EnvBadInt(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FRAME_INTERVAL", "two")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Load() should fail on a non-numeric FRAME_INTERVAL")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := Default()
	cfg.Scan.AssetsPaths = []string{"/media"}
	cfg.Search.CacheSize = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Search.CacheSize != 7 || loaded.Scan.AssetsPaths[0] != "/media" {
		t.Errorf("round trip lost values: %+v", loaded.Search)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := ResolvePath(""); got != DefaultConfigFile {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, DefaultConfigFile)
	}

	t.Setenv(EnvConfigPath, "/etc/msearch.yml")
	if got := ResolvePath(""); got != "/etc/msearch.yml" {
		t.Errorf("ResolvePath with env = %q, want /etc/msearch.yml", got)
	}
	if got := ResolvePath("/flag.yml"); got != "/flag.yml" {
		t.Errorf("flag should win over env, got %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~/x", filepath.Join(home, "x")},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ExpandPath(tt.input); got != tt.want {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
