package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tradekit/signalpilot/internal/archive"
	s3blob "github.com/tradekit/signalpilot/internal/blob/s3"
	"github.com/tradekit/signalpilot/internal/cache/redis"
	"github.com/tradekit/signalpilot/internal/config"
	"github.com/tradekit/signalpilot/internal/crypto"
	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/notify"
	"github.com/tradekit/signalpilot/internal/store/memstore"
	"github.com/tradekit/signalpilot/internal/store/postgres"
	"github.com/tradekit/signalpilot/internal/supervise"
	"github.com/tradekit/signalpilot/internal/venue/mt5bridge"
	"github.com/tradekit/signalpilot/internal/venue/sim"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Venue      domain.ExecutionVenue
	Ledger     domain.SignalLedger
	Protection domain.ProtectionStore
	Quotes     domain.QuoteCache

	// TickStream is nil in dry_run mode; the supervisor then reads quotes
	// straight from the simulated venue.
	TickStream *mt5bridge.TickStream

	Archiver supervise.Archiver
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	live := strings.ToLower(cfg.Mode) == "live"

	// --- Execution venue ---
	if live {
		password, err := resolveVenuePassword(cfg.Venue)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue credentials: %w", err)
		}
		deps.Venue = mt5bridge.NewClient(mt5bridge.Config{
			BaseURL:  cfg.Venue.BridgeURL,
			APIToken: cfg.Venue.APIToken,
			Login:    cfg.Venue.Login,
			Password: password,
		})
		if cfg.Venue.BridgeWSURL != "" {
			deps.TickStream = mt5bridge.NewTickStream(cfg.Venue.BridgeWSURL, cfg.Venue.APIToken)
		}
	} else {
		deps.Venue = sim.New()
	}

	// --- Stores: PostgreSQL in live mode, in-memory otherwise ---
	if live {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Protection = postgres.NewProtectionStore(pool)

		// --- Redis quote cache ---
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Quotes = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteMaxAge.Duration)
	} else {
		deps.Ledger = memstore.NewLedger()
		deps.Protection = memstore.NewProtectionStore()
		deps.Quotes = memstore.NewQuoteCache(cfg.Redis.QuoteMaxAge.Duration)
	}

	// --- S3 archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = archive.New(s3blob.NewWriter(s3Client), logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// resolveVenuePassword returns the terminal password, decrypting the
// encrypted blob when one is configured.
func resolveVenuePassword(cfg config.VenueConfig) (string, error) {
	if cfg.EncryptedPasswordPath == "" {
		return cfg.Password, nil
	}
	return crypto.LoadSecret(crypto.SecretConfig{
		EncryptedPath: cfg.EncryptedPasswordPath,
		Password:      cfg.SecretPassword,
	})
}
