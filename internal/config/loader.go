package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in three layers: built-in defaults, an optional
// TOML file, and ORBEX_* environment variables. Later layers win. A missing
// path skips the file layer so the binary can run on defaults plus env.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Best effort; a missing .env file is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// applyEnvOverrides layers ORBEX_* environment variables over cfg. Only
// variables that are set and non-empty take effect.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "ORBEX_MODE")
	setStr(&cfg.LogLevel, "ORBEX_LOG_LEVEL")

	// Chain
	setStr(&cfg.Chain.WSURL, "ORBEX_CHAIN_WS_URL")
	setStr(&cfg.Chain.Stream, "ORBEX_CHAIN_STREAM")
	setDuration(&cfg.Chain.ReconnectDelay, "ORBEX_CHAIN_RECONNECT_DELAY")
	setDuration(&cfg.Chain.MaxReconnectDelay, "ORBEX_CHAIN_MAX_RECONNECT_DELAY")

	// Market
	setStr(&cfg.Market.Symbol, "ORBEX_MARKET_SYMBOL")
	setStr(&cfg.Market.Description, "ORBEX_MARKET_DESCRIPTION")
	setStr(&cfg.Market.BaseCurrency, "ORBEX_MARKET_BASE_CURRENCY")
	setStr(&cfg.Market.QuoteCurrency, "ORBEX_MARKET_QUOTE_CURRENCY")
	setInt(&cfg.Market.PriceScale, "ORBEX_MARKET_PRICESCALE")

	// Candles and broadcast
	setInt(&cfg.Candles.HistoryLimit, "ORBEX_CANDLES_HISTORY_LIMIT")
	setInt(&cfg.Broadcast.Capacity, "ORBEX_BROADCAST_CAPACITY")

	// Server
	setInt(&cfg.Server.Port, "ORBEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ORBEX_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "ORBEX_SERVER_RATE_LIMIT_PER_MIN")

	// Postgres
	setStr(&cfg.Postgres.DSN, "ORBEX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ORBEX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ORBEX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ORBEX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ORBEX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ORBEX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ORBEX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ORBEX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ORBEX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ORBEX_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "ORBEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ORBEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ORBEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ORBEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ORBEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ORBEX_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BookTTL, "ORBEX_REDIS_BOOK_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "ORBEX_REDIS_STREAM_MAX_LEN")

	// Archive
	setBool(&cfg.Archive.Enabled, "ORBEX_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "ORBEX_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "ORBEX_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "ORBEX_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "ORBEX_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "ORBEX_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "ORBEX_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "ORBEX_ARCHIVE_FORCE_PATH_STYLE")
	setStr(&cfg.Archive.Prefix, "ORBEX_ARCHIVE_PREFIX")
	setStr(&cfg.Archive.Cron, "ORBEX_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "ORBEX_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.Prune, "ORBEX_ARCHIVE_PRUNE")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "ORBEX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ORBEX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ORBEX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ORBEX_NOTIFY_EVENTS")
}

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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
