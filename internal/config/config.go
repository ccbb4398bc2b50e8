// Package config defines the top-level configuration for the Kalshi quoter
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by KALSHIMM_* environment variables.
type Config struct {
	Kalshi   KalshiConfig   `toml:"kalshi"`
	Quoting  QuotingConfig  `toml:"quoting"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// KalshiConfig holds Kalshi exchange API credentials.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	EncryptedKeyPath  string `toml:"encrypted_key_path"`
	KeyPassword       string `toml:"key_password"`
	BaseURL           string `toml:"base_url"`
	OrderbookDepth    int    `toml:"orderbook_depth"`
	// RequestsPerSecond is enforced through Redis when redis is enabled.
	RequestsPerSecond int `toml:"requests_per_second"`
}

// QuotingConfig holds the parameters of the quote decision and of the
// market selection for scans.
type QuotingConfig struct {
	Contracts      int     `toml:"contracts"`
	MinProfitCents float64 `toml:"min_profit_cents"`
	AsMaker        bool    `toml:"as_maker"`
	// SpreadOverrideCents evaluates this spread instead of the live one
	// when positive.
	SpreadOverrideCents int  `toml:"spread_override_cents"`
	AutoExecute         bool `toml:"auto_execute"`
	PostOnly            bool `toml:"post_only"`
	// TopOfBookFallback lets a failed book fetch degrade to the market's
	// best bids.
	TopOfBookFallback bool `toml:"top_of_book_fallback"`

	// Tickers pins the markets to evaluate. When empty, markets are listed
	// with the filters below.
	Tickers      []string `toml:"tickers"`
	Status       string   `toml:"status"`
	SeriesTicker string   `toml:"series_ticker"`
	EventTicker  string   `toml:"event_ticker"`
	MarketLimit  int      `toml:"market_limit"`

	Concurrency int      `toml:"concurrency"`
	LockTTL     duration `toml:"lock_ttl"`
	// Interval repeats scan and quote modes; zero runs once. Watch mode
	// needs it positive.
	Interval duration `toml:"interval"`
	// MarketCacheTTL keeps scan listings in redis; zero disables caching.
	MarketCacheTTL duration `toml:"market_cache_ttl"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the HTTP API settings used by serve mode.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimitPerMinute caps requests per client IP; it needs redis.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
	// AllowExecute enables POST /api/markets/{ticker}/quote.
	AllowExecute bool `toml:"allow_execute"`
}

// LogConfig controls where logs go. Logs are written to stdout and, when
// File is set, to a size-rotated file as well.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
		Kalshi: KalshiConfig{
			BaseURL:           "https://api.elections.kalshi.com/trade-api/v2",
			OrderbookDepth:    10,
			RequestsPerSecond: 10,
		},
		Quoting: QuotingConfig{
			Contracts:         100,
			MinProfitCents:    50,
			AsMaker:           true,
			PostOnly:          true,
			TopOfBookFallback: true,
			Status:            "open",
			MarketLimit:       100,
			Concurrency:       4,
			LockTTL:           duration{30 * time.Second},
			MarketCacheTTL:    duration{time.Minute},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "kalshimm-data",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"quote.opportunity", "quote.placed", "quote.failed", "scan.complete"},
		},
		Server: ServerConfig{
			Port:               8080,
			RateLimitPerMinute: 120,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mode:     "analyze",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"analyze":     true,
	"scan":        true,
	"quote":       true,
	"watch":       true,
	"report":      true,
	"serve":       true,
	"encrypt-key": true,
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

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: analyze, scan, quote, watch, report, serve, encrypt-key)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Kalshi
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if mode == "encrypt-key" {
		if c.Kalshi.RsaPrivateKeyPath == "" || c.Kalshi.EncryptedKeyPath == "" || c.Kalshi.KeyPassword == "" {
			errs = append(errs, "kalshi: encrypt-key needs rsa_private_key_path, encrypted_key_path and key_password")
		}
	} else {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key must be set")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" && c.Kalshi.EncryptedKeyPath == "" {
			errs = append(errs, "kalshi: either rsa_private_key_path or encrypted_key_path must be set")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" && c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
			errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
		}
	}
	if c.Kalshi.OrderbookDepth < 0 {
		errs = append(errs, "kalshi: orderbook_depth must be >= 0")
	}
	if c.Kalshi.RequestsPerSecond < 0 {
		errs = append(errs, "kalshi: requests_per_second must be >= 0")
	}

	// Quoting
	if c.Quoting.Contracts <= 0 {
		errs = append(errs, "quoting: contracts must be > 0")
	}
	if c.Quoting.MinProfitCents < 0 {
		errs = append(errs, "quoting: min_profit_cents must be >= 0")
	}
	if c.Quoting.SpreadOverrideCents < 0 || c.Quoting.SpreadOverrideCents > 98 {
		errs = append(errs, fmt.Sprintf("quoting: spread_override_cents must be 0-98, got %d", c.Quoting.SpreadOverrideCents))
	}
	if c.Quoting.Concurrency < 1 {
		errs = append(errs, "quoting: concurrency must be >= 1")
	}
	if c.Quoting.MarketLimit < 0 {
		errs = append(errs, "quoting: market_limit must be >= 0")
	}
	if c.Quoting.LockTTL.Duration <= 0 {
		errs = append(errs, "quoting: lock_ttl must be positive")
	}
	if c.Quoting.Interval.Duration < 0 {
		errs = append(errs, "quoting: interval must be >= 0")
	}
	if c.Quoting.MarketCacheTTL.Duration < 0 {
		errs = append(errs, "quoting: market_cache_ttl must be >= 0")
	}
	if (mode == "analyze" || mode == "watch") && len(c.Quoting.Tickers) == 0 {
		errs = append(errs, fmt.Sprintf("quoting: %s mode needs at least one ticker", mode))
	}
	if mode == "watch" && c.Quoting.Interval.Duration <= 0 {
		errs = append(errs, "quoting: watch mode needs a positive interval")
	}
	if mode == "report" && !c.S3.Enabled && !c.Redis.Enabled && !c.Supabase.Enabled {
		errs = append(errs, "report mode needs s3, redis or supabase enabled")
	}

	// Supabase
	if c.Supabase.Enabled {
		if strings.TrimSpace(c.Supabase.DSN) == "" {
			if c.Supabase.Host == "" {
				errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
			}
			if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
				errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
			}
			if c.Supabase.Database == "" {
				errs = append(errs, "supabase: database must not be empty")
			}
		}
		if c.Supabase.PoolMaxConns < 1 {
			errs = append(errs, "supabase: pool_max_conns must be >= 1")
		}
		if c.Supabase.PoolMinConns < 0 {
			errs = append(errs, "supabase: pool_min_conns must be >= 0")
		}
		if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
			errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
		if c.Server.AllowExecute && c.Server.APIKey == "" {
			errs = append(errs, "server: allow_execute needs api_key")
		}
	}

	// Log
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		errs = append(errs, "log: max_size_mb must be > 0 when file is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
