package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App     AppConfig     `yaml:"app"`
	Backend BackendConfig `yaml:"backend"`
	Upload  UploadConfig  `yaml:"upload"`
}

type AppConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogFilePath string `yaml:"log_file_path"`
	HistoryDir  string `yaml:"history_dir"`
	WebDir      string `yaml:"web_dir"`
}

// BackendConfig points at the document-processing service.
// BaseURL includes any path prefix the deployment mounts the API under (e.g. "/api").
type BackendConfig struct {
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	UploadTimeout   time.Duration `yaml:"upload_timeout"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Load reads .env (if present), the process environment, and finally the YAML
// file named by DOCINTEL_CONFIG. Values from the file override the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		App: AppConfig{
			Port:        envOr("PORT", "8080"),
			Environment: envOr("GO_ENV", "development"),
			LogFilePath: envOr("LOG_FILE_PATH", "data/docintel.log"),
			HistoryDir:  envOr("HISTORY_DIR", "data/history"),
			WebDir:      os.Getenv("WEB_DIR"),
		},
		Backend: BackendConfig{
			BaseURL:         envOr("BACKEND_URL", "http://localhost:8000"),
			RequestTimeout:  envDuration("REQUEST_TIMEOUT", 2*time.Minute),
			UploadTimeout:   envDuration("UPLOAD_TIMEOUT", 10*time.Minute),
			BreakerFailures: envInt("BREAKER_FAILURES", 5),
			BreakerCooldown: envDuration("BREAKER_COOLDOWN", 30*time.Second),
		},
		Upload: UploadConfig{
			MaxBytes: envInt64("MAX_UPLOAD_BYTES", 100<<20), // 100MB
		},
	}

	if path := os.Getenv("DOCINTEL_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return cfg, err
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = 2 * time.Minute
	}
	if c.Backend.UploadTimeout <= 0 {
		c.Backend.UploadTimeout = 10 * time.Minute
	}
	if c.Backend.BreakerFailures <= 0 {
		c.Backend.BreakerFailures = 5
	}
	if c.Backend.BreakerCooldown <= 0 {
		c.Backend.BreakerCooldown = 30 * time.Second
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 100 << 20
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.Backend.BaseURL)
	}
	if c.App.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
