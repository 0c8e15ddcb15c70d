// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Download DownloadConfig `mapstructure:"download"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SiteConfig identifies the monitored page and how we present ourselves to it.
type SiteConfig struct {
	URL       string `mapstructure:"url"`
	UserAgent string `mapstructure:"user_agent"`
}

// PathsConfig sets the directories and files the pipeline writes.
type PathsConfig struct {
	DownloadDir string `mapstructure:"download_dir"`
	OutputDir   string `mapstructure:"output_dir"`
	CacheFile   string `mapstructure:"cache_file"`
}

// ScheduleConfig governs the polling loop.
type ScheduleConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// DownloadConfig governs the archive download worker pool.
type DownloadConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IATTC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.url", "https://iattc.org/en-US/Data/Public-domain")
	v.SetDefault("site.user_agent", "IATTC-Data-Monitor/1.0")
	v.SetDefault("paths.download_dir", "./downloads")
	v.SetDefault("paths.output_dir", "./json_output")
	v.SetDefault("paths.cache_file", "./site_cache.json")
	v.SetDefault("schedule.interval_minutes", 60)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Site.URL) == "" {
		return fmt.Errorf("site.url must be set")
	}
	if c.Schedule.IntervalMinutes <= 0 {
		return fmt.Errorf("schedule.interval_minutes must be > 0")
	}
	if c.Download.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// RequestTimeout converts the HTTP timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CheckInterval converts the poll interval config into a duration.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.Schedule.IntervalMinutes) * time.Minute
}

// BackoffInitial returns the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// PrepareDirs creates the download and output directories and verifies they
// are writable, so misconfiguration fails startup instead of the first cycle.
func (c Config) PrepareDirs() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.OutputDir, filepath.Dir(c.Paths.CacheFile)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		probe := filepath.Join(dir, ".writable_test")
		if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
		if err := os.Remove(probe); err != nil {
			return fmt.Errorf("clean up probe file in %s: %w", dir, err)
		}
	}
	return nil
}
