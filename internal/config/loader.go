package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIMM_* environment variable overrides, and
// returns the final Config. A missing file is not an error, so a deployment
// can be configured from the environment alone. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIMM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "KALSHIMM_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHIMM_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "KALSHIMM_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "KALSHIMM_KALSHI_KEY_PASSWORD")
	setStr(&cfg.Kalshi.BaseURL, "KALSHIMM_KALSHI_BASE_URL")
	setInt(&cfg.Kalshi.OrderbookDepth, "KALSHIMM_KALSHI_ORDERBOOK_DEPTH")
	setInt(&cfg.Kalshi.RequestsPerSecond, "KALSHIMM_KALSHI_REQUESTS_PER_SECOND")

	// ── Quoting ──
	setInt(&cfg.Quoting.Contracts, "KALSHIMM_QUOTING_CONTRACTS")
	setFloat64(&cfg.Quoting.MinProfitCents, "KALSHIMM_QUOTING_MIN_PROFIT_CENTS")
	setBool(&cfg.Quoting.AsMaker, "KALSHIMM_QUOTING_AS_MAKER")
	setInt(&cfg.Quoting.SpreadOverrideCents, "KALSHIMM_QUOTING_SPREAD_OVERRIDE_CENTS")
	setBool(&cfg.Quoting.AutoExecute, "KALSHIMM_QUOTING_AUTO_EXECUTE")
	setBool(&cfg.Quoting.PostOnly, "KALSHIMM_QUOTING_POST_ONLY")
	setBool(&cfg.Quoting.TopOfBookFallback, "KALSHIMM_QUOTING_TOP_OF_BOOK_FALLBACK")
	setStringSlice(&cfg.Quoting.Tickers, "KALSHIMM_QUOTING_TICKERS")
	setStr(&cfg.Quoting.Status, "KALSHIMM_QUOTING_STATUS")
	setStr(&cfg.Quoting.SeriesTicker, "KALSHIMM_QUOTING_SERIES_TICKER")
	setStr(&cfg.Quoting.EventTicker, "KALSHIMM_QUOTING_EVENT_TICKER")
	setInt(&cfg.Quoting.MarketLimit, "KALSHIMM_QUOTING_MARKET_LIMIT")
	setInt(&cfg.Quoting.Concurrency, "KALSHIMM_QUOTING_CONCURRENCY")
	setDuration(&cfg.Quoting.LockTTL, "KALSHIMM_QUOTING_LOCK_TTL")
	setDuration(&cfg.Quoting.Interval, "KALSHIMM_QUOTING_INTERVAL")
	setDuration(&cfg.Quoting.MarketCacheTTL, "KALSHIMM_QUOTING_MARKET_CACHE_TTL")

	// ── Supabase ──
	setBool(&cfg.Supabase.Enabled, "KALSHIMM_SUPABASE_ENABLED")
	setStr(&cfg.Supabase.DSN, "KALSHIMM_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "KALSHIMM_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "KALSHIMM_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "KALSHIMM_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "KALSHIMM_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "KALSHIMM_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "KALSHIMM_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "KALSHIMM_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "KALSHIMM_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "KALSHIMM_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "KALSHIMM_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "KALSHIMM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "KALSHIMM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIMM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIMM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KALSHIMM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KALSHIMM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIMM_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KALSHIMM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KALSHIMM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KALSHIMM_S3_REGION")
	setStr(&cfg.S3.Bucket, "KALSHIMM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KALSHIMM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KALSHIMM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KALSHIMM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KALSHIMM_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KALSHIMM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KALSHIMM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KALSHIMM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KALSHIMM_NOTIFY_EVENTS")

	// ── Server ──
	setInt(&cfg.Server.Port, "KALSHIMM_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "KALSHIMM_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "KALSHIMM_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMinute, "KALSHIMM_SERVER_RATE_LIMIT_PER_MINUTE")
	setBool(&cfg.Server.AllowExecute, "KALSHIMM_SERVER_ALLOW_EXECUTE")

	// ── Log ──
	setStr(&cfg.Log.File, "KALSHIMM_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "KALSHIMM_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "KALSHIMM_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "KALSHIMM_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "KALSHIMM_LOG_COMPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIMM_MODE")
	setStr(&cfg.LogLevel, "KALSHIMM_LOG_LEVEL")
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
