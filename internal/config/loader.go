package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIGNALPILOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIGNALPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setFloat64(&cfg.Trading.RiskPercent, "SIGNALPILOT_TRADING_RISK_PERCENT")
	setInt(&cfg.Trading.NumPositions, "SIGNALPILOT_TRADING_NUM_POSITIONS")
	setStr(&cfg.Trading.Slot1Target, "SIGNALPILOT_TRADING_SLOT1_TARGET")
	setBool(&cfg.Trading.StagedEntry, "SIGNALPILOT_TRADING_STAGED_ENTRY")
	setBool(&cfg.Trading.RunnerEnabled, "SIGNALPILOT_TRADING_RUNNER_ENABLED")
	setFloat64(&cfg.Trading.DefaultStopPips, "SIGNALPILOT_TRADING_DEFAULT_STOP_PIPS")
	setFloat64(&cfg.Trading.TrailingStopPips, "SIGNALPILOT_TRADING_TRAILING_STOP_PIPS")
	setFloat64(&cfg.Trading.TrailingActivationPips, "SIGNALPILOT_TRADING_TRAILING_ACTIVATION_PIPS")
	setBool(&cfg.Trading.BreakevenEnabled, "SIGNALPILOT_TRADING_BREAKEVEN_ENABLED")
	setFloat64(&cfg.Trading.BreakevenBufferPips, "SIGNALPILOT_TRADING_BREAKEVEN_BUFFER_PIPS")
	setDuration(&cfg.Trading.PollInterval, "SIGNALPILOT_TRADING_POLL_INTERVAL")

	// ── Venue ──
	setStr(&cfg.Venue.BridgeURL, "SIGNALPILOT_VENUE_BRIDGE_URL")
	setStr(&cfg.Venue.BridgeWSURL, "SIGNALPILOT_VENUE_BRIDGE_WS_URL")
	setStr(&cfg.Venue.APIToken, "SIGNALPILOT_VENUE_API_TOKEN")
	setStr(&cfg.Venue.Login, "SIGNALPILOT_VENUE_LOGIN")
	setStr(&cfg.Venue.Password, "SIGNALPILOT_VENUE_PASSWORD")
	setStr(&cfg.Venue.EncryptedPasswordPath, "SIGNALPILOT_VENUE_ENCRYPTED_PASSWORD_PATH")
	setStr(&cfg.Venue.SecretPassword, "SIGNALPILOT_VENUE_SECRET_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SIGNALPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SIGNALPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIGNALPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIGNALPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIGNALPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIGNALPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIGNALPILOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIGNALPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIGNALPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIGNALPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SIGNALPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIGNALPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIGNALPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIGNALPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIGNALPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIGNALPILOT_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.QuoteMaxAge, "SIGNALPILOT_REDIS_QUOTE_MAX_AGE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SIGNALPILOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SIGNALPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SIGNALPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SIGNALPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SIGNALPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SIGNALPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SIGNALPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SIGNALPILOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SIGNALPILOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SIGNALPILOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SIGNALPILOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SIGNALPILOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SIGNALPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SIGNALPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SIGNALPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SIGNALPILOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SIGNALPILOT_MODE")
	setStr(&cfg.LogLevel, "SIGNALPILOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
