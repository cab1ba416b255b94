package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "dry_run"

[trading]
risk_percent = 2.5
num_positions = 4
poll_interval = "10s"

[venue]
bridge_url = "http://bridge:9000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dry_run", cfg.Mode)
	assert.Equal(t, 2.5, cfg.Trading.RiskPercent)
	assert.Equal(t, 4, cfg.Trading.NumPositions)
	assert.Equal(t, 10*time.Second, cfg.Trading.PollInterval.Duration)
	assert.Equal(t, "http://bridge:9000", cfg.Venue.BridgeURL)

	// Untouched keys keep their defaults.
	assert.Equal(t, "tp1", cfg.Trading.Slot1Target)
	assert.True(t, cfg.Trading.StagedEntry)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "dry_run"`)

	t.Setenv("SIGNALPILOT_TRADING_RISK_PERCENT", "0.5")
	t.Setenv("SIGNALPILOT_VENUE_PASSWORD", "hunter2")
	t.Setenv("SIGNALPILOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SIGNALPILOT_TRADING_STAGED_ENTRY", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Trading.RiskPercent)
	assert.Equal(t, "hunter2", cfg.Venue.Password)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Trading.StagedEntry)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateDryRunDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "dry_run"
	assert.NoError(t, cfg.Validate())
}

func TestValidateLiveNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_token, password, or encrypted_password_path")

	cfg.Venue.APIToken = "token"
	assert.NoError(t, cfg.Validate())

	// An encrypted password file needs its passphrase.
	cfg.Venue.APIToken = ""
	cfg.Venue.EncryptedPasswordPath = "venue_password.json"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_password")

	cfg.Venue.SecretPassword = "pass"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Venue.Password = "hunter2"
	cfg.Postgres.Password = "pgpass"
	cfg.Server.APIKey = "key"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Venue.Password)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)

	// Non-secret fields and the original are untouched.
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Venue.Password)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown mode":        func(c *Config) { c.Mode = "paper" },
		"unknown log level":   func(c *Config) { c.LogLevel = "trace" },
		"zero risk":           func(c *Config) { c.Trading.RiskPercent = 0 },
		"risk over 100":       func(c *Config) { c.Trading.RiskPercent = 150 },
		"zero positions":      func(c *Config) { c.Trading.NumPositions = 0 },
		"bad slot1 target":    func(c *Config) { c.Trading.Slot1Target = "tp4" },
		"zero default stop":   func(c *Config) { c.Trading.DefaultStopPips = 0 },
		"zero trail distance": func(c *Config) { c.Trading.TrailingStopPips = 0 },
		"sub-second poll":     func(c *Config) { c.Trading.PollInterval.Duration = 100 * time.Millisecond },
		"empty redis addr":    func(c *Config) { c.Redis.Addr = "" },
		"bad server port":     func(c *Config) { c.Server.Port = 70000 },
		"s3 without bucket":   func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "" },
	}

	for name, mutate := range cases {
		cfg := Defaults()
		cfg.Mode = "dry_run"
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
