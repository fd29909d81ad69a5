// Package config loads the YAML application configuration and serves it
// through a TTL-bounded loader, so long-running components pick up edits
// without a restart and tests can force a reload.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Server struct {
		Port int    `yaml:"port" validate:"required,min=1,max=65535"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Gateway struct {
		BaseURL string `yaml:"base_url" validate:"required,url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"gateway"`

	Models struct {
		Speech      string  `yaml:"speech" validate:"required"`
		Text        string  `yaml:"text" validate:"required"`
		Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
		MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	} `yaml:"models"`

	Pipeline struct {
		MaxSegmentSeconds  float64 `yaml:"max_segment_seconds" validate:"gt=0"`
		MaxScriptChars     int     `yaml:"max_script_chars" validate:"gt=0"`
		SummaryBudgetChars int     `yaml:"summary_budget_chars" validate:"gt=0"`
	} `yaml:"pipeline"`

	Workers struct {
		Count int `yaml:"count" validate:"min=1"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir" validate:"required"`
		OutputDir string `yaml:"output_dir" validate:"required"`
		Database  string `yaml:"database" validate:"required"`
		BaseURL   string `yaml:"base_url"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"min=1"`
		MaxAgeHours     int `yaml:"max_age_hours" validate:"min=1"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb" validate:"min=1"`
	} `yaml:"limits"`

	Voices struct {
		Host  string `yaml:"host" validate:"required"`
		Guest string `yaml:"guest" validate:"required"`
	} `yaml:"voices"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	applyDefaults(cfg)
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.Server.Port = 8080
	cfg.Server.Host = "0.0.0.0"
	cfg.Models.Temperature = 0.7
	cfg.Pipeline.MaxSegmentSeconds = 1800
	cfg.Pipeline.MaxScriptChars = 5000
	cfg.Pipeline.SummaryBudgetChars = 8000
	cfg.Workers.Count = 2
	cfg.Cleanup.IntervalMinutes = 30
	cfg.Cleanup.MaxAgeHours = 24
	cfg.Limits.MaxFileSizeMB = 500
}

// Loader caches a loaded Config for a bounded TTL. Not a hidden module
// singleton: callers hold the loader and can reset it.
type Loader struct {
	path string
	ttl  time.Duration

	mu        sync.Mutex
	cached    *Config
	fetchedAt time.Time
	now       func() time.Time
}

// NewLoader creates a loader; nothing is read until Current is called.
func NewLoader(path string, ttl time.Duration) *Loader {
	return &Loader{path: path, ttl: ttl, now: time.Now}
}

// Current returns the cached configuration, reloading from disk when the
// TTL has lapsed. A reload failure keeps serving the previous value.
func (l *Loader) Current() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != nil && !l.expiredLocked() {
		return l.cached, nil
	}

	cfg, err := Load(l.path)
	if err != nil {
		if l.cached != nil {
			return l.cached, nil
		}
		return nil, err
	}
	l.cached = cfg
	l.fetchedAt = l.now()
	return cfg, nil
}

// Expired reports whether the cached value is past its TTL (or absent).
func (l *Loader) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cached == nil || l.expiredLocked()
}

func (l *Loader) expiredLocked() bool {
	return l.now().Sub(l.fetchedAt) >= l.ttl
}

// Invalidate drops the cached value; the next Current reloads from disk.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
	l.fetchedAt = time.Time{}
}
