package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config file location.
const EnvConfigPath = "MSEARCH_CONFIG"

// ResolvePath returns the config file path to use: the explicit flag value,
// then $MSEARCH_CONFIG, then config.yml in the working directory.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return ExpandPath(flagValue)
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return ExpandPath(p)
	}
	return DefaultConfigFile
}

// Load reads configuration from path. When the file doesn't exist, defaults are
// overridden from the environment (after loading .env if present) instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		_ = godotenv.Load()
		if err := applyEnv(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// applyEnv overrides cfg with the environment variables the service has
// historically accepted. Unset variables leave the default in place.
func applyEnv(cfg *Config) error {
	envList("ASSETS_PATH", &cfg.Scan.AssetsPaths)
	envList("SKIP_PATH", &cfg.Scan.SkipPaths)
	envList("IGNORE_STRINGS", &cfg.Scan.IgnoreStrings)
	envList("IMAGE_EXTENSIONS", &cfg.Scan.ImageExtensions)
	envList("VIDEO_EXTENSIONS", &cfg.Scan.VideoExtensions)
	envString("AUTO_SCAN_START_TIME", &cfg.Scan.AutoScanStartTime)
	envString("AUTO_SCAN_END_TIME", &cfg.Scan.AutoScanEndTime)
	envString("MODEL_NAME", &cfg.Model.Name)
	envString("EMBEDDING_URL", &cfg.Model.URL)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("MSEARCH_DB_DRIVER", &cfg.Storage.Driver)
	envString("MSEARCH_DB_PATH", &cfg.Storage.Path)
	envString("MSEARCH_POSTGRES_URL", &cfg.Storage.PostgresURL)

	if v := os.Getenv("AUTO_SCAN"); v != "" {
		cfg.Scan.AutoScan = strings.EqualFold(v, "true")
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"FRAME_INTERVAL", &cfg.Scan.FrameInterval},
		{"SCAN_PROCESS_BATCH_SIZE", &cfg.Scan.ScanProcessBatchSize},
		{"IMAGE_MIN_WIDTH", &cfg.Scan.ImageMinWidth},
		{"IMAGE_MIN_HEIGHT", &cfg.Scan.ImageMinHeight},
		{"IMAGE_MAX_PIXELS", &cfg.Scan.ImageMaxPixels},
		{"AUTO_SAVE_INTERVAL", &cfg.Scan.LogInterval},
		{"CACHE_SIZE", &cfg.Search.CacheSize},
		{"MAX_RESULT_NUM", &cfg.Search.MaxResultNum},
		{"MODEL_DIMENSIONS", &cfg.Model.Dimensions},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", e.key, err)
		}
		*e.dst = n
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"POSITIVE_THRESHOLD", &cfg.Search.PositiveThreshold},
		{"NEGATIVE_THRESHOLD", &cfg.Search.NegativeThreshold},
		{"IMAGE_THRESHOLD", &cfg.Search.ImageThreshold},
	}
	for _, e := range floats {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", e.key, err)
		}
		*e.dst = f
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
