package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all Docsmith configuration.
type Config struct {
	Listen   string         `yaml:"listen" env:"DOCSMITH_LISTEN"`
	DBPath   string         `yaml:"db_path" env:"DOCSMITH_DB_PATH"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Queue    QueueConfig    `yaml:"queue"`
	Stream   StreamConfig   `yaml:"stream"`
	History  HistoryConfig  `yaml:"history"`
}

// UpstreamConfig identifies the LLM completion API. The API key is
// expected to arrive from the environment in most deployments.
type UpstreamConfig struct {
	URL     string        `yaml:"url" env:"DOCSMITH_UPSTREAM_URL"`
	APIKey  string        `yaml:"api_key" env:"DOCSMITH_UPSTREAM_API_KEY"`
	Model   string        `yaml:"model" env:"DOCSMITH_UPSTREAM_MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"DOCSMITH_UPSTREAM_TIMEOUT"`
}

// CacheConfig controls the in-memory document cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// QueueConfig controls retry and pacing behavior of the processing loop.
type QueueConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	ItemDelay  time.Duration `yaml:"item_delay"`
}

// StreamConfig controls the SSE progress stream.
type StreamConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Deadline     time.Duration `yaml:"deadline"`
}

// HistoryConfig controls the SQLite generation log.
type HistoryConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "docsmith.db",
		Upstream: UpstreamConfig{
			URL:     "https://openrouter.ai/api/v1",
			Model:   "anthropic/claude-sonnet-4",
			Timeout: 120 * time.Second,
		},
		Cache: CacheConfig{
			TTL:           24 * time.Hour,
			MaxEntries:    512,
			SweepInterval: time.Hour,
		},
		Queue: QueueConfig{
			MaxRetries: 2,
			ItemDelay:  3 * time.Second,
		},
		Stream: StreamConfig{
			PollInterval: 2 * time.Second,
			Deadline:     10 * time.Minute,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
	}
}

// Load reads a YAML config file, expands environment variables in its
// values, and applies DOCSMITH_* environment overrides on top. A missing
// file is not an error; the defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

// Validate checks the fields the serve path cannot run without.
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream.url is required")
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("upstream.api_key is required (set DOCSMITH_UPSTREAM_API_KEY)")
	}
	if c.Upstream.Model == "" {
		return fmt.Errorf("upstream.model is required")
	}
	return nil
}
