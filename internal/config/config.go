// Package config defines the top-level configuration for the indexer and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ORBEX_* environment variables.
type Config struct {
	Chain     ChainConfig     `toml:"chain"`
	Market    MarketConfig    `toml:"market"`
	Candles   CandlesConfig   `toml:"candles"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Server    ServerConfig    `toml:"server"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ChainConfig holds the chain node connection parameters.
type ChainConfig struct {
	WSURL             string   `toml:"ws_url"`
	Stream            string   `toml:"stream"`
	ReconnectDelay    duration `toml:"reconnect_delay"`
	MaxReconnectDelay duration `toml:"max_reconnect_delay"`
}

// MarketConfig describes the one trading pair this indexer mirrors.
type MarketConfig struct {
	Symbol        string `toml:"symbol"`
	Description   string `toml:"description"`
	BaseCurrency  string `toml:"base_currency"`
	QuoteCurrency string `toml:"quote_currency"`
	PriceScale    int    `toml:"pricescale"`
}

// CandlesConfig holds in-memory candle aggregation parameters.
type CandlesConfig struct {
	// HistoryLimit bounds how many closed bars per (symbol, timeframe) are
	// retained in memory.
	HistoryLimit int `toml:"history_limit"`
}

// BroadcastConfig holds in-process fan-out parameters.
type BroadcastConfig struct {
	// Capacity is the per-channel ring size. Slow subscribers that fall
	// more than this many updates behind skip ahead.
	Capacity int `toml:"capacity"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`

	// RateLimitPerMin caps requests per client per minute. Zero disables
	// rate limiting.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// PostgresConfig holds PostgreSQL connection parameters. Either DSN or the
// discrete fields may be used.
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

// RedisConfig holds Redis connection and mirror parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	// BookTTL is how long mirrored book snapshots stay readable without a
	// refresh.
	BookTTL duration `toml:"book_ttl"`

	// StreamMaxLen bounds the closed-candle stream length.
	StreamMaxLen int64 `toml:"stream_max_len"`
}

// ArchiveConfig holds S3-compatible cold storage parameters for the trade
// archiver.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	Cron           string `toml:"cron"`
	RetentionDays  int    `toml:"retention_days"`
	Prune          bool   `toml:"prune"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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

// Defaults returns a Config populated with values suitable for local
// development against a node, Postgres, and Redis on localhost.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			WSURL:             "ws://127.0.0.1:9944/stream",
			Stream:            "finalized_events",
			ReconnectDelay:    duration{2 * time.Second},
			MaxReconnectDelay: duration{60 * time.Second},
		},
		Market: MarketConfig{
			Symbol:        "ETH/USDC",
			Description:   "Ether / USD Coin",
			BaseCurrency:  "ETH",
			QuoteCurrency: "USDC",
			PriceScale:    100,
		},
		Candles: CandlesConfig{
			HistoryLimit: 1000,
		},
		Broadcast: BroadcastConfig{
			Capacity: 1024,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 300,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "orbex",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			BookTTL:      duration{24 * time.Hour},
			StreamMaxLen: 10000,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "orbex-archive",
			UseSSL:         false,
			ForcePathStyle: true,
			Prefix:         "archive",
			Cron:           "0 3 1 * *",
			RetentionDays:  90,
			Prune:          false,
		},
		Notify: NotifyConfig{
			Events: []string{"archive_complete", "archive_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"ingest": true,
	"server": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, ingest, server)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain feed is only consumed by modes that ingest.
	ingests := mode == "full" || mode == "ingest"
	if ingests {
		if c.Chain.WSURL == "" {
			errs = append(errs, "chain: ws_url must not be empty for mode "+c.Mode)
		}
		if c.Chain.Stream == "" {
			errs = append(errs, "chain: stream must not be empty")
		}
		if c.Chain.MaxReconnectDelay.Duration < c.Chain.ReconnectDelay.Duration {
			errs = append(errs, "chain: max_reconnect_delay must not be below reconnect_delay")
		}
	}

	// Market
	if c.Market.Symbol == "" {
		errs = append(errs, "market: symbol must not be empty")
	}
	if c.Market.PriceScale <= 0 {
		errs = append(errs, "market: pricescale must be > 0")
	}

	// Candles and broadcast
	if c.Candles.HistoryLimit < 1 {
		errs = append(errs, "candles: history_limit must be >= 1")
	}
	if c.Broadcast.Capacity < 1 {
		errs = append(errs, "broadcast: capacity must be >= 1")
	}

	// Server only listens in full and server modes.
	serves := mode == "full" || mode == "server"
	if serves {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	// Postgres backs trade history in every mode.
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

	// Redis carries the mirror between modes.
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.StreamMaxLen < 0 {
		errs = append(errs, "redis: stream_max_len must be >= 0")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
		if c.Archive.Region == "" {
			errs = append(errs, "archive: region must not be empty when enabled")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
	}

	// Telegram credentials come in pairs.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
