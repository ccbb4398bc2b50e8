package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Kalshi.ApiKey = "key"
	cfg.Kalshi.RsaPrivateKeyPath = "/keys/kalshi.pem"
	cfg.Quoting.Tickers = []string{"KXTEST-1"}
	return cfg
}

func TestDefaultsWithCredentialsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"missing api key", func(c *Config) { c.Kalshi.ApiKey = "" }, "api_key must be set"},
		{"no key source", func(c *Config) { c.Kalshi.RsaPrivateKeyPath = "" }, "rsa_private_key_path or encrypted_key_path"},
		{"encrypted without password", func(c *Config) {
			c.Kalshi.RsaPrivateKeyPath = ""
			c.Kalshi.EncryptedKeyPath = "/keys/kalshi.json"
		}, "key_password is required"},
		{"zero contracts", func(c *Config) { c.Quoting.Contracts = 0 }, "contracts must be > 0"},
		{"negative min profit", func(c *Config) { c.Quoting.MinProfitCents = -1 }, "min_profit_cents"},
		{"override too wide", func(c *Config) { c.Quoting.SpreadOverrideCents = 99 }, "spread_override_cents"},
		{"no concurrency", func(c *Config) { c.Quoting.Concurrency = 0 }, "concurrency"},
		{"analyze without ticker", func(c *Config) { c.Quoting.Tickers = nil }, "at least one ticker"},
		{"redis without addr", func(c *Config) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}, "redis: addr"},
		{"s3 without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"supabase pool inverted", func(c *Config) {
			c.Supabase.Enabled = true
			c.Supabase.PoolMinConns = 20
		}, "pool_min_conns must not exceed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "nope"
	cfg.Quoting.Contracts = -1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown mode") || !strings.Contains(err.Error(), "contracts") {
		t.Errorf("missing problems in %q", err)
	}
}

func TestValidate_DisabledBackendsAreIgnored(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	cfg.Supabase.Host = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled backends should not be validated: %v", err)
	}
}

func TestValidate_EncryptKeyMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "encrypt-key"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "encrypt-key needs") {
		t.Fatalf("err = %v", err)
	}
	cfg.Kalshi.RsaPrivateKeyPath = "in.pem"
	cfg.Kalshi.EncryptedKeyPath = "out.json"
	cfg.Kalshi.KeyPassword = "pw"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_WatchAndReportModes(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "watch"
	cfg.Quoting.Tickers = nil
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "watch mode needs at least one ticker") ||
		!strings.Contains(err.Error(), "positive interval") {
		t.Fatalf("watch err = %v", err)
	}
	cfg.Quoting.Tickers = []string{"KXA"}
	cfg.Quoting.Interval.Duration = 5 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Errorf("watch: unexpected error: %v", err)
	}

	cfg.Mode = "report"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "report mode needs s3, redis or supabase") {
		t.Fatalf("report err = %v", err)
	}
	cfg.Redis.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("report with redis: unexpected error: %v", err)
	}
}

func TestValidate_ServeMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "serve"
	cfg.Server.Port = 0
	cfg.Server.AllowExecute = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "server: port") ||
		!strings.Contains(err.Error(), "allow_execute needs api_key") {
		t.Fatalf("serve err = %v", err)
	}

	cfg.Server.Port = 8080
	cfg.Server.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("serve: unexpected error: %v", err)
	}

	// Server settings are ignored outside serve mode.
	cfg.Mode = "scan"
	cfg.Server.Port = -1
	if err := cfg.Validate(); err != nil {
		t.Errorf("scan: unexpected error: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "scan"

[kalshi]
api_key = "from-file"
orderbook_depth = 5

[quoting]
contracts = 25
tickers = ["A", "B"]
lock_ttl = "45s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KALSHIMM_KALSHI_API_KEY", "from-env")
	t.Setenv("KALSHIMM_QUOTING_TICKERS", " C , ,D")
	t.Setenv("KALSHIMM_QUOTING_MIN_PROFIT_CENTS", "12.5")
	t.Setenv("KALSHIMM_REDIS_ENABLED", "true")
	t.Setenv("KALSHIMM_QUOTING_CONCURRENCY", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "scan" || cfg.Kalshi.OrderbookDepth != 5 || cfg.Quoting.Contracts != 25 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Quoting.LockTTL.Duration != 45*time.Second {
		t.Errorf("lock_ttl = %v", cfg.Quoting.LockTTL.Duration)
	}
	if cfg.Kalshi.ApiKey != "from-env" {
		t.Errorf("env should override file, got %q", cfg.Kalshi.ApiKey)
	}
	if len(cfg.Quoting.Tickers) != 2 || cfg.Quoting.Tickers[0] != "C" || cfg.Quoting.Tickers[1] != "D" {
		t.Errorf("tickers = %v", cfg.Quoting.Tickers)
	}
	if cfg.Quoting.MinProfitCents != 12.5 || !cfg.Redis.Enabled {
		t.Errorf("typed overrides not applied: %+v", cfg.Quoting)
	}
	if cfg.Quoting.Concurrency != Defaults().Quoting.Concurrency {
		t.Errorf("unparsable override should be ignored, got %d", cfg.Quoting.Concurrency)
	}
	if cfg.Kalshi.BaseURL != Defaults().Kalshi.BaseURL {
		t.Errorf("defaults lost: base_url = %q", cfg.Kalshi.BaseURL)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Quoting.Contracts != 100 {
		t.Errorf("contracts = %d, want default 100", cfg.Quoting.Contracts)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("mode = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Kalshi.KeyPassword = "pw"
	cfg.Supabase.DSN = "postgres://u:p@h/db"
	cfg.S3.SecretKey = "secret"
	cfg.Notify.DiscordWebhookURL = "https://discord/hook"
	cfg.Server.APIKey = "server-key"

	out := RedactedConfig(&cfg)
	for name, v := range map[string]string{
		"api_key":      out.Kalshi.ApiKey,
		"key_password": out.Kalshi.KeyPassword,
		"dsn":          out.Supabase.DSN,
		"s3 secret":    out.S3.SecretKey,
		"discord":      out.Notify.DiscordWebhookURL,
		"server key":   out.Server.APIKey,
	} {
		if v != redacted {
			t.Errorf("%s not redacted: %q", name, v)
		}
	}
	if out.Redis.Password != "" {
		t.Error("empty secrets should stay empty")
	}
	if cfg.Kalshi.ApiKey != "key" {
		t.Error("original config was modified")
	}

	out.Quoting.Tickers[0] = "mutated"
	if cfg.Quoting.Tickers[0] != "KXTEST-1" {
		t.Error("redacted copy shares the tickers slice")
	}
}

func TestNewLogger(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "warn"
	cfg.Log.File = filepath.Join(t.TempDir(), "kalshimm.log")

	logger, closer := NewLogger(&cfg)
	logger.Warn("written", "k", "v")
	logger.Info("filtered")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.Log.File)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written"`) || strings.Contains(string(data), "filtered") {
		t.Errorf("log file = %s", data)
	}
	if logger.Enabled(context.Background(), ParseLevel("info")) {
		t.Error("info should be disabled at warn level")
	}
}
