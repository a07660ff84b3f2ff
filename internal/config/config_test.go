package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "full", cfg.Mode)
	require.Equal(t, "ETH/USDC", cfg.Market.Symbol)
	require.Equal(t, 24*time.Hour, cfg.Redis.BookTTL.Duration)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "ingest"
log_level = "debug"

[chain]
ws_url = "ws://node.internal:9944/stream"
reconnect_delay = "5s"

[market]
symbol = "DOT/USDC"
pricescale = 1000

[server]
port = 9001
cors_origins = ["https://app.example.com"]

[redis]
stream_max_len = 5000
book_ttl = "1h"

[archive]
enabled = true
bucket = "cold"
region = "eu-central-1"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "ingest", cfg.Mode)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "ws://node.internal:9944/stream", cfg.Chain.WSURL)
	require.Equal(t, 5*time.Second, cfg.Chain.ReconnectDelay.Duration)
	require.Equal(t, "DOT/USDC", cfg.Market.Symbol)
	require.Equal(t, 1000, cfg.Market.PriceScale)
	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	require.EqualValues(t, 5000, cfg.Redis.StreamMaxLen)
	require.Equal(t, time.Hour, cfg.Redis.BookTTL.Duration)
	require.True(t, cfg.Archive.Enabled)
	require.Equal(t, "cold", cfg.Archive.Bucket)

	// Untouched sections keep their defaults.
	require.Equal(t, "finalized_events", cfg.Chain.Stream)
	require.Equal(t, 1000, cfg.Candles.HistoryLimit)
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoadBadFile(t *testing.T) {
	path := writeConfig(t, `mode = [not toml`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9001
`)
	t.Setenv("ORBEX_MODE", "server")
	t.Setenv("ORBEX_SERVER_PORT", "9100")
	t.Setenv("ORBEX_POSTGRES_DSN", "postgres://u:p@db:5432/orbex")
	t.Setenv("ORBEX_REDIS_BOOK_TTL", "30m")
	t.Setenv("ORBEX_SERVER_CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("ORBEX_ARCHIVE_PRUNE", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "server", cfg.Mode)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "postgres://u:p@db:5432/orbex", cfg.Postgres.DSN)
	require.Equal(t, 30*time.Minute, cfg.Redis.BookTTL.Duration)
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
	require.True(t, cfg.Archive.Prune)
}

func TestEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("ORBEX_SERVER_PORT", "not-a-number")
	t.Setenv("ORBEX_ARCHIVE_ENABLED", "definitely")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().Server.Port, cfg.Server.Port)
	require.False(t, cfg.Archive.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantSub: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantSub: "unknown log_level",
		},
		{
			name:    "missing ws url",
			mutate:  func(c *Config) { c.Chain.WSURL = "" },
			wantSub: "ws_url",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantSub: "server: port",
		},
		{
			name:    "pool min above max",
			mutate:  func(c *Config) { c.Postgres.PoolMinConns = 50 },
			wantSub: "pool_min_conns",
		},
		{
			name: "archive enabled without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Bucket = ""
			},
			wantSub: "archive: bucket",
		},
		{
			name:    "telegram token without chat id",
			mutate:  func(c *Config) { c.Notify.TelegramToken = "tok" },
			wantSub: "telegram_chat_id",
		},
		{
			name:    "zero pricescale",
			mutate:  func(c *Config) { c.Market.PriceScale = 0 },
			wantSub: "pricescale",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantSub)
		})
	}
}

func TestServerModeDoesNotNeedChainFeed(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	cfg.Chain.WSURL = ""
	require.NoError(t, cfg.Validate())
}

func TestIngestModeSkipsServerChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "ingest"
	cfg.Server.Port = 0
	require.NoError(t, cfg.Validate())
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://u:hunter2@db/orbex"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.Archive.AccessKey = "AKIA123"
	cfg.Archive.SecretKey = "s3cr3t"
	cfg.Notify.TelegramToken = "tok"
	cfg.Notify.TelegramChatID = "-100"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/x"

	red := cfg.Redacted()

	require.Equal(t, "***", red.Postgres.DSN)
	require.Equal(t, "***", red.Postgres.Password)
	require.Equal(t, "***", red.Redis.Password)
	require.Equal(t, "***", red.Archive.AccessKey)
	require.Equal(t, "***", red.Archive.SecretKey)
	require.Equal(t, "***", red.Notify.TelegramToken)
	require.Equal(t, "***", red.Notify.DiscordWebhookURL)

	// Empty secrets stay empty rather than advertising a mask.
	require.Empty(t, Defaults().Redacted().Redis.Password)

	// The copy does not alias the original's slices.
	red.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])

	// Original is untouched.
	require.Equal(t, "hunter2", cfg.Postgres.Password)
}
