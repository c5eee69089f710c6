package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "rules.json", cfg.RulesPath)
	assert.True(t, cfg.WatchRules)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 1024, cfg.ReportQueueSize)
	assert.Equal(t, 120, cfg.DetectRatePerMinute)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 100, cfg.LogMaxSizeMB)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RULES_PATH", "/etc/veil/rules.json")
	t.Setenv("WATCH_RULES", "false")
	t.Setenv("LOG_SERVICE_URL", "http://logs:8000")
	t.Setenv("REPORT_QUEUE_SIZE", "16")
	t.Setenv("SWEEP_INTERVAL", "30s")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/etc/veil/rules.json", cfg.RulesPath)
	assert.False(t, cfg.WatchRules)
	assert.Equal(t, "http://logs:8000", cfg.LogServiceURL)
	assert.Equal(t, 16, cfg.ReportQueueSize)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Port: "8080", LogFormat: "json", ReportQueueSize: 1, DetectRatePerMinute: 1, SweepInterval: time.Second}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Port = ""
	cfg.ReportQueueSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is required")
	assert.Contains(t, err.Error(), "report_queue_size")

	cfg = base()
	cfg.UpstreamURL = "ftp://origin"
	assert.ErrorContains(t, cfg.Validate(), "upstream_url")

	cfg = base()
	cfg.LogServiceURL = "/relative"
	assert.ErrorContains(t, cfg.Validate(), "log_service_url")

	cfg = base()
	cfg.LogFormat = "console"
	assert.ErrorContains(t, cfg.Validate(), "log_format")

	cfg = base()
	cfg.LogFile = "/var/log/veil.log"
	cfg.LogMaxSizeMB = 0
	assert.ErrorContains(t, cfg.Validate(), "log_max_size_mb")
}
