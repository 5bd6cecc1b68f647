// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration for the sync daemon.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8090"`
	DataDir  string `env:"DATA_DIR" envDefault:"./data"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Supabase backend. Sync stays disabled until URL and key are set.
	SupabaseURL     string `env:"SUPABASE_URL"`
	SupabaseAnonKey string `env:"SUPABASE_ANON_KEY"`
	AccessToken     string `env:"SUPABASE_ACCESS_TOKEN"`
	Bucket          string `env:"DRAWINGS_BUCKET" envDefault:"drawings"`

	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`

	UploadMaxRetries int `env:"UPLOAD_MAX_RETRIES" envDefault:"3"`
	UploadMaxWidth   int `env:"UPLOAD_MAX_WIDTH" envDefault:"800"`
	UploadMaxHeight  int `env:"UPLOAD_MAX_HEIGHT" envDefault:"600"`
	UploadQuality    int `env:"UPLOAD_QUALITY" envDefault:"80"`

	CacheMaxEntries int           `env:"URL_CACHE_MAX_ENTRIES" envDefault:"100"`
	CacheMaxAge     time.Duration `env:"URL_CACHE_MAX_AGE" envDefault:"30m"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RemoteConfigured reports whether the cloud backend is usable.
func (c *Config) RemoteConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

func (c *Config) validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.UploadQuality < 1 || c.UploadQuality > 100 {
		return fmt.Errorf("upload quality %d out of range [1,100]", c.UploadQuality)
	}
	if c.UploadMaxRetries < 1 {
		return fmt.Errorf("upload max retries must be at least 1, got %d", c.UploadMaxRetries)
	}
	if c.UploadMaxWidth < 1 || c.UploadMaxHeight < 1 {
		return fmt.Errorf("upload max dimensions must be positive, got %dx%d", c.UploadMaxWidth, c.UploadMaxHeight)
	}
	return nil
}
