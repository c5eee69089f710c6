// Package config loads service settings from the environment and the
// detection rule document from disk.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds the server settings. Every field maps to an upper-case
// environment variable of the same name (PORT, DATABASE_URL, ...).
type Config struct {
	Port                string        `mapstructure:"port"`
	DatabaseURL         string        `mapstructure:"database_url"`
	RulesPath           string        `mapstructure:"rules_path"`
	WatchRules          bool          `mapstructure:"watch_rules"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	LogFile             string        `mapstructure:"log_file"`
	LogMaxSizeMB        int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups       int           `mapstructure:"log_max_backups"`
	LogMaxAgeDays       int           `mapstructure:"log_max_age_days"`
	LogServiceURL       string        `mapstructure:"log_service_url"`
	UpstreamURL         string        `mapstructure:"upstream_url"`
	ReportQueueSize     int           `mapstructure:"report_queue_size"`
	DetectRatePerMinute int           `mapstructure:"detect_rate_per_minute"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
}

// SetDefaults registers every key with its default so that AutomaticEnv can
// see it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("rules_path", "rules.json")
	v.SetDefault("watch_rules", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)
	v.SetDefault("log_service_url", "")
	v.SetDefault("upstream_url", "")
	v.SetDefault("report_queue_size", 1024)
	v.SetDefault("detect_rate_per_minute", 120)
	v.SetDefault("sweep_interval", time.Minute)
}

// Load reads settings from v, falling back to the environment and then to
// defaults, and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	if c.ReportQueueSize <= 0 {
		errs = append(errs, errors.New("report_queue_size must be positive"))
	}
	if c.DetectRatePerMinute <= 0 {
		errs = append(errs, errors.New("detect_rate_per_minute must be positive"))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	if c.LogFile != "" && c.LogMaxSizeMB <= 0 {
		errs = append(errs, errors.New("log_max_size_mb must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep_interval must be positive"))
	}
	for name, raw := range map[string]string{"log_service_url": c.LogServiceURL, "upstream_url": c.UpstreamURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute http(s) URL", name))
		}
	}
	return errors.Join(errs...)
}
