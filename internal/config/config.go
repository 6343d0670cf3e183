// Package config loads crestline settings from a YAML file, the environment
// and command-line overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kamilpajak/crestline/pkg/analysis"
	"gopkg.in/yaml.v3"
)

// Config is the resolved client configuration.
type Config struct {
	// Server is the base URL of the analysis service (without /api).
	Server string `yaml:"server"`
	Mode   string `yaml:"mode"`
	Zoom   string `yaml:"zoom"`
	// Timeout bounds a single analysis request. Zero means no timeout.
	Timeout   time.Duration   `yaml:"timeout"`
	History   string          `yaml:"history"`
	LogLevel  string          `yaml:"log_level"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Azure     AzureConfig     `yaml:"azure"`
}

// DashboardConfig configures the local web dashboard.
type DashboardConfig struct {
	Host      string  `yaml:"host"`
	Port      int     `yaml:"port"`
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	Burst     int     `yaml:"burst"`
}

// AzureConfig holds shared-key credentials for azblob:// image references.
type AzureConfig struct {
	Account string `yaml:"account"`
	Key     string `yaml:"key"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server:   "http://localhost:5000",
		Mode:     string(analysis.ModeSegment),
		Zoom:     analysis.DefaultZoomText,
		History:  defaultHistoryPath(),
		LogLevel: "info",
		Dashboard: DashboardConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			RateLimit: 1,
			Burst:     3,
		},
	}
}

// Dir returns the per-user crestline directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crestline"
	}
	return filepath.Join(home, ".crestline")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func defaultHistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}

// Load reads the config file at path (DefaultPath when empty), applies
// environment overrides and validates the result. A missing default file is
// not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CRESTLINE_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("CRESTLINE_HISTORY"); v != "" {
		c.History = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		c.History = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CRESTLINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d >= 0 {
			c.Timeout = d
		}
	}
	if v := os.Getenv("CRESTLINE_PORT"); v != "" {
		if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Dashboard.Port = p
		}
	}
	if v := os.Getenv("AZURE_STORAGE_ACCOUNT"); v != "" {
		c.Azure.Account = v
	}
	if v := os.Getenv("AZURE_STORAGE_KEY"); v != "" {
		c.Azure.Key = v
	}
}

// Validate checks field ranges and formats.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL: %q", c.Server)
	}
	if _, err := analysis.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("invalid mode: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0 (got %s)", c.Timeout)
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port: %d", c.Dashboard.Port)
	}
	if c.Dashboard.RateLimit < 0 || c.Dashboard.Burst < 0 {
		return fmt.Errorf("dashboard rate limit must be >= 0 (got rate=%g, burst=%d)",
			c.Dashboard.RateLimit, c.Dashboard.Burst)
	}
	return nil
}

// DefaultMode returns the configured mode, already validated.
func (c *Config) DefaultMode() analysis.Mode {
	m, err := analysis.ParseMode(c.Mode)
	if err != nil {
		return analysis.ModeSegment
	}
	return m
}
