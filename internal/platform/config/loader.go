package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads configuration from a yaml file layered over the defaults,
// with a .env file loaded first so ${ENV} style secrets resolve.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader that searches the default config locations.
func NewLoader() *Loader {
	return &Loader{useDotEnv: true}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the loader to an explicit config file (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

var searchPaths = []string{".config.yaml", "config.yaml", "configs/config.yaml"}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	l.applyEnv(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets that should not live in the config file.
func (l *Loader) applyEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		if cfg.Usage.Store.Redis == nil {
			cfg.Usage.Store.Redis = &RedisStoreConfig{}
		}
		cfg.Usage.Store.Redis.Addr = addr
	}
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Pipeline.SegmentSeconds <= 0 {
		return fmt.Errorf("segment_seconds must be positive, got %v", cfg.Pipeline.SegmentSeconds)
	}
	if cfg.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1, got %d", cfg.Pipeline.MaxConcurrency)
	}
	if cfg.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Pipeline.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1, got %v", cfg.Pipeline.Backoff.Multiplier)
	}
	return nil
}
