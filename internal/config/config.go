// Package config defines the top-level configuration for the signal engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SIGNALPILOT_* environment variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	Venue    VenueConfig    `toml:"venue"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// TradingConfig holds risk, staging, and supervision parameters.
type TradingConfig struct {
	// RiskPercent is the share of account balance risked per signal,
	// split evenly across the entry slots.
	RiskPercent float64 `toml:"risk_percent"`
	// NumPositions is the number of staged entry slots per signal.
	NumPositions int `toml:"num_positions"`
	// Slot1Target selects the target for the first slot: "tp1" or "tp2".
	Slot1Target string `toml:"slot1_target"`
	// StagedEntry enables splitting the entry zone across slots. When
	// disabled every slot enters at the zone midpoint.
	StagedEntry bool `toml:"staged_entry"`
	// RunnerEnabled leaves the last slot without a fixed target so it can
	// trail after TP2.
	RunnerEnabled bool `toml:"runner_enabled"`
	// DefaultStopPips is the assumed stop distance when a signal carries no
	// stop level at all.
	DefaultStopPips float64 `toml:"default_stop_pips"`
	// TrailingStopPips is the ratchet distance between best price and stop.
	TrailingStopPips float64 `toml:"trailing_stop_pips"`
	// TrailingActivationPips is the unrealized profit required before a
	// non-runner position starts trailing.
	TrailingActivationPips float64 `toml:"trailing_activation_pips"`
	// BreakevenEnabled moves non-runner stops to entry when profit
	// protection fires.
	BreakevenEnabled bool `toml:"breakeven_enabled"`
	// BreakevenBufferPips pads the breakeven stop beyond the entry price.
	BreakevenBufferPips float64 `toml:"breakeven_buffer_pips"`
	// PollInterval is the cadence of the tracker, trailing, and protection
	// loops.
	PollInterval duration `toml:"poll_interval"`
}

// VenueConfig holds connection parameters for the execution venue bridge.
type VenueConfig struct {
	BridgeURL   string `toml:"bridge_url"`
	BridgeWSURL string `toml:"bridge_ws_url"`
	APIToken    string `toml:"api_token"`
	Login       string `toml:"login"`
	Password    string `toml:"password"`
	// EncryptedPasswordPath points at a JSON blob produced by
	// `signalpilot encrypt-secret`; it replaces Password when set.
	EncryptedPasswordPath string `toml:"encrypted_password_path"`
	SecretPassword        string `toml:"secret_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	QuoteMaxAge duration `toml:"quote_max_age"`
}

// S3Config holds S3-compatible object storage parameters for the signal
// lifecycle archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP signal-intake server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5s" or "2m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			RiskPercent:            1.0,
			NumPositions:           3,
			Slot1Target:            "tp1",
			StagedEntry:            true,
			RunnerEnabled:          true,
			DefaultStopPips:        50,
			TrailingStopPips:       30,
			TrailingActivationPips: 20,
			BreakevenEnabled:       true,
			BreakevenBufferPips:    1,
			PollInterval:           duration{5 * time.Second},
		},
		Venue: VenueConfig{
			BridgeURL:   "http://localhost:8787",
			BridgeWSURL: "ws://localhost:8787/ws/ticks",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "signalpilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			TLSEnabled:  false,
			QuoteMaxAge: duration{10 * time.Second},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "signalpilot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8090,
		},
		Notify: NotifyConfig{
			Events: []string{"signal_placed", "signal_failed", "protection_fired", "cancel_failed", "signal_retired"},
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":    true,
	"dry_run": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, dry_run)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if c.Trading.RiskPercent <= 0 || c.Trading.RiskPercent > 100 {
		errs = append(errs, fmt.Sprintf("trading: risk_percent must be in (0, 100], got %v", c.Trading.RiskPercent))
	}
	if c.Trading.NumPositions < 1 {
		errs = append(errs, "trading: num_positions must be >= 1")
	}
	if t := strings.ToLower(c.Trading.Slot1Target); t != "tp1" && t != "tp2" {
		errs = append(errs, fmt.Sprintf("trading: slot1_target must be \"tp1\" or \"tp2\", got %q", c.Trading.Slot1Target))
	}
	if c.Trading.DefaultStopPips <= 0 {
		errs = append(errs, "trading: default_stop_pips must be > 0")
	}
	if c.Trading.TrailingStopPips <= 0 {
		errs = append(errs, "trading: trailing_stop_pips must be > 0")
	}
	if c.Trading.TrailingActivationPips < 0 {
		errs = append(errs, "trading: trailing_activation_pips must be >= 0")
	}
	if c.Trading.PollInterval.Duration < time.Second {
		errs = append(errs, "trading: poll_interval must be at least 1s")
	}

	// Venue — a live run needs the bridge and some credential source.
	if strings.ToLower(c.Mode) == "live" {
		if c.Venue.BridgeURL == "" {
			errs = append(errs, "venue: bridge_url must not be empty in live mode")
		}
		if c.Venue.Password == "" && c.Venue.EncryptedPasswordPath == "" && c.Venue.APIToken == "" {
			errs = append(errs, "venue: one of api_token, password, or encrypted_password_path must be set in live mode")
		}
		if c.Venue.EncryptedPasswordPath != "" && c.Venue.SecretPassword == "" {
			errs = append(errs, "venue: secret_password is required when encrypted_password_path is set")
		}
	}

	// Postgres (live mode persists the ledger; dry_run may run in-memory)
	if strings.ToLower(c.Mode) == "live" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
