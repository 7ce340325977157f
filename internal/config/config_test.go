package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/co2scale/internal/config"
	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/poller"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "co2scale.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
address = "http://scale.local"
home_interval = "500ms"
settings_interval = "3s"
request_timeout = "750ms"
overlap_policy = "coalesce"
log_level = "debug"

[history]
enabled = true
dsn = "/tmp/co2scale.db"
batch_size = 4
`)

	cfg, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, "http://scale.local", cfg.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.HomeInterval)
	assert.Equal(t, 3*time.Second, cfg.SettingsInterval)
	assert.Equal(t, 750*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, poller.Coalesce, cfg.Policy())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/tmp/co2scale.db", cfg.History.DSN)
	assert.Equal(t, 4, cfg.History.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.History.BatchTimeout)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CO2SCALE_CONFIG", writeConfig(t, ""))

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultAddress, cfg.Address)
	assert.Equal(t, time.Second, cfg.HomeInterval)
	assert.Equal(t, 2*time.Second, cfg.SettingsInterval)
	assert.Zero(t, cfg.RequestTimeout)
	assert.Equal(t, poller.LastResolvedWins, cfg.Policy())
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.History.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `address = "http://from-file"`)
	t.Setenv("CO2SCALE_ADDRESS", "http://from-env")
	t.Setenv("CO2SCALE_HISTORY_ENABLED", "true")

	cfg, err := config.Load(config.WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.Address)
	assert.True(t, cfg.History.Enabled)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CO2SCALE_ADDRESS", "http://from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", writeConfig(t, ""),
		"--address", "http://from-flag",
		"--home-interval", "250ms",
	}))

	cfg, err := config.Load(config.WithFlags(fs))
	require.NoError(t, err)

	assert.Equal(t, "http://from-flag", cfg.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.HomeInterval)
	assert.Equal(t, 2*time.Second, cfg.SettingsInterval, "unset flag keeps default")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(config.WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
	require.Error(t, err)

	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrReadConfig, code)
}

func TestInvalidLogLevel(t *testing.T) {
	path := writeConfig(t, `log_level = "invalid"`)

	_, err := config.Load(config.WithConfigFile(path))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "invalid")
}

func TestValidate(t *testing.T) {
	base := func() config.Config {
		return config.Config{
			Address:          "http://scale",
			HomeInterval:     time.Second,
			SettingsInterval: time.Second,
			OverlapPolicy:    "last-resolved",
			LogLevel:         "info",
		}
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		{"empty address", func(c *config.Config) { c.Address = "" }, errors.ErrInvalidAddress},
		{"zero home interval", func(c *config.Config) { c.HomeInterval = 0 }, errors.ErrInvalidInterval},
		{"negative settings interval", func(c *config.Config) { c.SettingsInterval = -time.Second }, errors.ErrInvalidInterval},
		{"negative timeout", func(c *config.Config) { c.RequestTimeout = -1 }, errors.ErrInvalidInterval},
		{"unknown policy", func(c *config.Config) { c.OverlapPolicy = "queue" }, errors.ErrInvalidPolicy},
		{"history without dsn", func(c *config.Config) {
			c.History = config.HistoryConfig{Enabled: true, BatchSize: 1}
		}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			code, ok := errors.CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())
}
