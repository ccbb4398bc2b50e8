package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/kalshimm/internal/blob/s3"
	"github.com/alanyoungcy/kalshimm/internal/cache/redis"
	"github.com/alanyoungcy/kalshimm/internal/config"
	"github.com/alanyoungcy/kalshimm/internal/crypto"
	"github.com/alanyoungcy/kalshimm/internal/domain"
	"github.com/alanyoungcy/kalshimm/internal/notify"
	"github.com/alanyoungcy/kalshimm/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshimm/internal/service"
	"github.com/alanyoungcy/kalshimm/internal/store/postgres"
)

// Dependencies bundles everything the modes need. Only Exchange and
// Notifier are always set; the rest depend on which backends are enabled.
type Dependencies struct {
	Exchange service.Exchange

	// Stores
	Decisions domain.DecisionStore
	Orders    domain.OrderStore
	Audit     domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	MarketCache domain.MarketCache

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode reads or writes reports in object
// storage. analyze only prints.
func needsS3(cfg *config.Config) bool {
	return cfg.S3.Enabled && strings.ToLower(cfg.Mode) != "analyze"
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

	// --- Redis ---
	if cfg.Redis.Enabled {
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

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.MarketCache = redis.NewMarketCache(redisClient)
	}

	// --- Kalshi ---
	exchange, err := newExchange(cfg, deps.RateLimiter)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: kalshi: %w", err)
	}
	deps.Exchange = exchange

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Decisions = pgClient.Decisions()
		deps.Orders = pgClient.Orders()
		deps.Audit = pgClient.Audit()
	}

	// --- S3 blob storage ---
	if needsS3(cfg) {
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
			logger.WarnContext(ctx, "s3 bucket not reachable, archiving may fail",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.Audit)
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

// newExchange builds the signed Kalshi client. Requests are throttled
// through limiter when one is available.
func newExchange(cfg *config.Config, limiter domain.RateLimiter) (*kalshi.Client, error) {
	keyBytes, err := crypto.LoadKey(crypto.KeyConfig{
		PEMPath:          cfg.Kalshi.RsaPrivateKeyPath,
		EncryptedKeyPath: cfg.Kalshi.EncryptedKeyPath,
		KeyPassword:      cfg.Kalshi.KeyPassword,
	})
	if err != nil {
		return nil, err
	}

	kc := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey)
	if err := kc.SetRSAPrivateKey(keyBytes); err != nil {
		return nil, err
	}
	if limiter != nil {
		kc.SetRateLimiter(limiter, cfg.Kalshi.RequestsPerSecond)
	}
	return kc, nil
}

// quoteConfig maps the quoting section onto the service parameters.
func quoteConfig(cfg *config.Config) service.QuoteConfig {
	return service.QuoteConfig{
		Contracts:           cfg.Quoting.Contracts,
		MinProfitCents:      cfg.Quoting.MinProfitCents,
		AsMaker:             cfg.Quoting.AsMaker,
		SpreadOverrideCents: cfg.Quoting.SpreadOverrideCents,
		OrderbookDepth:      cfg.Kalshi.OrderbookDepth,
		PostOnly:            cfg.Quoting.PostOnly,
		TopOfBookFallback:   cfg.Quoting.TopOfBookFallback,
		LockTTL:             cfg.Quoting.LockTTL.Duration,
	}
}

// newQuoteService builds the quote service over whatever collaborators
// deps carries.
func (a *App) newQuoteService(deps *Dependencies) *service.QuoteService {
	qs := service.NewQuoteService(deps.Exchange, quoteConfig(a.cfg), a.logger)
	if deps.Decisions != nil {
		qs.WithDecisionStore(deps.Decisions)
	}
	if deps.Orders != nil {
		qs.WithOrderStore(deps.Orders)
	}
	if deps.Audit != nil {
		qs.WithAuditStore(deps.Audit)
	}
	if deps.SignalBus != nil {
		qs.WithSignalBus(deps.SignalBus)
	}
	if deps.LockManager != nil {
		qs.WithLockManager(deps.LockManager)
	}
	if deps.Notifier.Enabled() {
		qs.WithNotifier(deps.Notifier)
	}
	return qs
}

// newScanner builds the scanner for scan and quote modes.
func (a *App) newScanner(deps *Dependencies, quotes *service.QuoteService) *service.Scanner {
	q := a.cfg.Quoting
	sc := service.NewScanner(quotes, deps.Exchange, service.ScanConfig{
		Tickers: q.Tickers,
		Filter: domain.MarketFilter{
			Limit:        q.MarketLimit,
			Status:       q.Status,
			SeriesTicker: q.SeriesTicker,
			EventTicker:  q.EventTicker,
		},
		Concurrency:    q.Concurrency,
		MarketCacheTTL: q.MarketCacheTTL.Duration,
	}, a.logger)
	if deps.MarketCache != nil {
		sc.WithMarketCache(deps.MarketCache)
	}
	if deps.Archiver != nil {
		sc.WithArchiver(deps.Archiver)
	}
	if deps.Notifier.Enabled() {
		sc.WithNotifier(deps.Notifier)
	}
	return sc
}
