// Package config handles service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the full service configuration stored in config.yml.
type Config struct {
	Scan     ScanConfig    `yaml:"scan"`
	Search   SearchConfig  `yaml:"search"`
	Model    ModelConfig   `yaml:"model"`
	Storage  StorageConfig `yaml:"storage"`
	LogLevel string        `yaml:"log_level"` // debug, info, warn, error
}

// ScanConfig controls what the scanner indexes and when.
type ScanConfig struct {
	AssetsPaths     []string `yaml:"assets_paths"`     // Absolute directories to scan, in order
	SkipPaths       []string `yaml:"skip_paths"`       // Directories excluded with everything below them
	IgnoreStrings   []string `yaml:"ignore_strings"`   // Case-insensitive path substrings to skip
	ImageExtensions []string `yaml:"image_extensions"` // Lowercase, with leading dot
	VideoExtensions []string `yaml:"video_extensions"` // Lowercase, with leading dot

	FrameInterval        int `yaml:"frame_interval"`          // Seconds between sampled video frames
	ScanProcessBatchSize int `yaml:"scan_process_batch_size"` // Frames per embedding call

	ImageMinWidth  int `yaml:"image_min_width"`
	ImageMinHeight int `yaml:"image_min_height"`
	ImageMaxPixels int `yaml:"image_max_pixels"` // Guards against decompression bombs

	AutoScan              bool          `yaml:"auto_scan"`
	AutoScanStartTime     string        `yaml:"auto_scan_start_time"` // "22:30"
	AutoScanEndTime       string        `yaml:"auto_scan_end_time"`   // "8:00"
	AutoScanCheckInterval time.Duration `yaml:"auto_scan_check_interval"`

	LogInterval     int           `yaml:"log_interval"`     // Files between progress log lines
	ProgressRefresh time.Duration `yaml:"progress_refresh"` // Minimum time between ETA recomputations
}

// SearchConfig controls query defaults and the result cache.
type SearchConfig struct {
	CacheSize         int     `yaml:"cache_size"`
	MaxResultNum      int     `yaml:"max_result_num"`
	PositiveThreshold float64 `yaml:"positive_threshold"`
	NegativeThreshold float64 `yaml:"negative_threshold"`
	ImageThreshold    float64 `yaml:"image_threshold"`
}

// ModelConfig points at the embedding server.
type ModelConfig struct {
	URL               string        `yaml:"url"`
	Name              string        `yaml:"name"`
	Dimensions        int           `yaml:"dimensions"`
	InputSize         int           `yaml:"input_size"` // Images are downscaled to fit this box before upload
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables rate limiting
}

// StorageConfig selects the asset store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	Path        string `yaml:"path"`   // SQLite database file
	PostgresURL string `yaml:"postgres_url"`
}

const (
	// DriverSQLite selects the embedded SQLite asset store.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the PostgreSQL asset store.
	DriverPostgres = "postgres"

	// DefaultConfigFile is the config file name looked up in the working directory.
	DefaultConfigFile = "config.yml"
)

// Errors returned by validation.
var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrUnknownDriver    = errors.New("unknown storage driver")
)

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			AssetsPaths:           []string{"/home", "/srv"},
			SkipPaths:             []string{"/tmp"},
			IgnoreStrings:         []string{"thumb", "avatar", "__macosx", "icons", "cache"},
			ImageExtensions:       []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"},
			VideoExtensions:       []string{".mp4", ".flv", ".mov", ".mkv", ".avi"},
			FrameInterval:         2,
			ScanProcessBatchSize:  32,
			ImageMinWidth:         64,
			ImageMinHeight:        64,
			ImageMaxPixels:        100000000,
			AutoScan:              false,
			AutoScanStartTime:     "22:30",
			AutoScanEndTime:       "8:00",
			AutoScanCheckInterval: time.Minute,
			LogInterval:           100,
			ProgressRefresh:       time.Second,
		},
		Search: SearchConfig{
			CacheSize:         64,
			MaxResultNum:      150,
			PositiveThreshold: 36,
			NegativeThreshold: 36,
			ImageThreshold:    85,
		},
		Model: ModelConfig{
			URL:        "http://localhost:8000",
			Name:       "openai/clip-vit-base-patch32",
			Dimensions: 512,
			InputSize:  224,
			Timeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "./var/assets.db",
		},
		LogLevel: "info",
	}
}

// Validate checks values that would otherwise fail deep inside a scan.
func (c *Config) Validate() error {
	if _, err := ParseTimeOfDay(c.Scan.AutoScanStartTime); err != nil {
		return fmt.Errorf("auto_scan_start_time: %w", err)
	}
	if _, err := ParseTimeOfDay(c.Scan.AutoScanEndTime); err != nil {
		return fmt.Errorf("auto_scan_end_time: %w", err)
	}
	if c.Scan.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive, got %d", c.Scan.FrameInterval)
	}
	if c.Scan.ScanProcessBatchSize <= 0 {
		return fmt.Errorf("scan_process_batch_size must be positive, got %d", c.Scan.ScanProcessBatchSize)
	}
	if c.Scan.AutoScan && c.Scan.AutoScanCheckInterval <= 0 {
		return fmt.Errorf("auto_scan_check_interval must be positive when auto_scan is enabled")
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", c.Search.CacheSize)
	}
	if c.Model.Dimensions <= 0 {
		return fmt.Errorf("model dimensions must be positive, got %d", c.Model.Dimensions)
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q (valid: %s, %s)", ErrUnknownDriver, c.Storage.Driver, DriverSQLite, DriverPostgres)
	}
	return nil
}

// normalize lowercases extensions and ignore strings and expands ~ in paths.
func (c *Config) normalize() {
	for i, p := range c.Scan.AssetsPaths {
		c.Scan.AssetsPaths[i] = ExpandPath(strings.TrimSpace(p))
	}
	for i, p := range c.Scan.SkipPaths {
		c.Scan.SkipPaths[i] = ExpandPath(strings.TrimSpace(p))
	}
	c.Scan.ImageExtensions = normalizeExtensions(c.Scan.ImageExtensions)
	c.Scan.VideoExtensions = normalizeExtensions(c.Scan.VideoExtensions)
	for i, s := range c.Scan.IgnoreStrings {
		c.Scan.IgnoreStrings[i] = strings.ToLower(strings.TrimSpace(s))
	}
	c.Storage.Path = ExpandPath(c.Storage.Path)
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
