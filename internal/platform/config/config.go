package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Provider ProviderConfig `yaml:"provider"`
	Usage    UsageConfig    `yaml:"usage"`
	Storage  StorageConfig  `yaml:"storage"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Enabled   bool   `yaml:"enabled"`
	StaticDir string `yaml:"static_dir"`
}

// PipelineConfig tunes chunking and orchestration.
type PipelineConfig struct {
	SegmentSeconds  float64       `yaml:"segment_seconds"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	MaxAttempts     int           `yaml:"max_attempts"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	Backoff         BackoffConfig `yaml:"backoff"`
	WorkspaceRoot   string        `yaml:"workspace_root"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	WordsPerMinute  float64       `yaml:"words_per_minute"`
	ToleranceSecond float64       `yaml:"chunk_tolerance_seconds"`
}

type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Multiplier float64       `yaml:"multiplier"`
	Max        time.Duration `yaml:"max"`
}

type ProviderConfig struct {
	Type     string `yaml:"type"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	TestMode bool   `yaml:"test_mode"`
}

// UsageConfig drives metering and admission control.
type UsageConfig struct {
	MinInterval      time.Duration      `yaml:"min_interval"`
	Window           time.Duration      `yaml:"window"`
	FreeDailyCap     float64            `yaml:"free_daily_cap"`
	Rates            map[string]float64 `yaml:"rates"`
	FallbackMBPerMin float64            `yaml:"fallback_mb_per_minute"`
	Store            UsageStoreConfig   `yaml:"store"`
}

type UsageStoreConfig struct {
	Type  string            `yaml:"type"`
	Redis *RedisStoreConfig `yaml:"redis,omitempty"`
}

type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

type StorageConfig struct {
	DSN string `yaml:"dsn"`
}
