package config

import "time"

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   false,
			StaticDir: "./web",
		},
		Pipeline: PipelineConfig{
			SegmentSeconds:  300,
			MaxConcurrency:  4,
			MaxAttempts:     3,
			AttemptTimeout:  60 * time.Second,
			JobTimeout:      10 * time.Minute,
			WorkspaceRoot:   "data/workspaces",
			ProbeTimeout:    10 * time.Second,
			WordsPerMinute:  150,
			ToleranceSecond: 0.5,
			Backoff: BackoffConfig{
				Initial:    time.Second,
				Multiplier: 2,
				Max:        30 * time.Second,
			},
		},
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "whisper-1",
		},
		Usage: UsageConfig{
			MinInterval:  2 * time.Second,
			Window:       24 * time.Hour,
			FreeDailyCap: 60,
			Rates: map[string]float64{
				"free":         1.0,
				"basic":        0.75,
				"professional": 0.5,
			},
			FallbackMBPerMin: 1.0,
			Store: UsageStoreConfig{
				Type: "memory",
			},
		},
		Storage: StorageConfig{
			DSN: "data/vocallocal.db",
		},
	}
}
