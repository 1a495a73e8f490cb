// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port              string   `yaml:"port"`
	CORSOrigins       []string `yaml:"cors_origins"`
	AdminRateLimitRPS float64  `yaml:"admin_rate_limit_rps"`
	AdminRateBurst    int      `yaml:"admin_rate_limit_burst"`
}

type DataConfig struct {
	Dir              string        `yaml:"dir"`
	QuickStartFile   string        `yaml:"quick_start_file"`
	Extensions       []string      `yaml:"extensions"`
	Workers          int           `yaml:"workers"`
	PlaceholderCount int           `yaml:"placeholder_count"`
	WarmupDelayStr   string        `yaml:"warmup_delay"`
	WarmupDelay      time.Duration `yaml:"-"` // Parsed duration
}

type CacheConfig struct {
	Driver    string `yaml:"driver"` // sqlite or mysql
	Dir       string `yaml:"dir"`    // sqlite only
	DSN       string `yaml:"dsn"`    // mysql only
	StrictKey bool   `yaml:"strict_key"`
}

type LoggingConfig struct {
	Mode string `yaml:"mode"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

const (
	DefaultQuickStartFile = "chto-dobavlyaut-v-izbrannoe_-06_03_2021-04_04_2021.xlsx"
	defaultPort           = "8000"
)

// Load reads configuration in three layers: the YAML file at configPath (optional,
// skipped when empty or missing), a .env file in the working directory (optional),
// then environment variables. Defaults fill whatever is still unset.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		file, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Running on env vars alone is fine.
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	applyEnv(cfg)
	applyDefaults(cfg)

	if cfg.Data.WarmupDelayStr != "" {
		d, err := time.ParseDuration(cfg.Data.WarmupDelayStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse warmup_delay: %w", err)
		}
		cfg.Data.WarmupDelay = d
	}

	switch cfg.Cache.Driver {
	case "sqlite":
		if err := os.MkdirAll(cfg.Cache.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", cfg.Cache.Dir, err)
		}
	case "mysql":
		if cfg.Cache.DSN == "" {
			return nil, fmt.Errorf("cache driver mysql requires cache.dsn")
		}
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Data.Dir, "DATA_DIR")
	setString(&cfg.Data.QuickStartFile, "QUICK_START_FILE")
	setString(&cfg.Cache.Dir, "CACHE_DIR")
	setString(&cfg.Cache.Driver, "CACHE_DRIVER")
	setString(&cfg.Cache.DSN, "CACHE_DSN")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Logging.Mode, "LOG_MODE")
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("INGEST_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Data.Workers = n
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = defaultPort
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.AdminRateLimitRPS <= 0 {
		cfg.Server.AdminRateLimitRPS = 1
	}
	if cfg.Server.AdminRateBurst <= 0 {
		cfg.Server.AdminRateBurst = 5
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.QuickStartFile == "" {
		cfg.Data.QuickStartFile = DefaultQuickStartFile
	}
	if len(cfg.Data.Extensions) == 0 {
		cfg.Data.Extensions = []string{".xlsx", ".csv", ".html", ".htm"}
	}
	for i, ext := range cfg.Data.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Data.Extensions[i] = ext
	}
	if cfg.Data.Workers <= 0 {
		cfg.Data.Workers = 4
	}
	if cfg.Data.PlaceholderCount <= 0 {
		cfg.Data.PlaceholderCount = 1000
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "sqlite"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "cache"
	}
	if cfg.Logging.Mode == "" {
		cfg.Logging.Mode = "dev"
	}
}

// CacheDBPath is where the sqlite cache file lives.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.Cache.Dir, "data_cache.db")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
