package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COINWATCH_"

// Load merges the TOML file at path over Defaults, loads .env if present,
// and applies COINWATCH_* overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Bitstamp
	setStr(&cfg.Bitstamp.Pair, "BITSTAMP_PAIR")
	setStr(&cfg.Bitstamp.PusherKey, "BITSTAMP_PUSHER_KEY")
	setStr(&cfg.Bitstamp.PusherCluster, "BITSTAMP_PUSHER_CLUSTER")
	setStr(&cfg.Bitstamp.WSURL, "BITSTAMP_WS_URL")
	setStr(&cfg.Bitstamp.RESTURL, "BITSTAMP_REST_URL")
	setDuration(&cfg.Bitstamp.RESTTimeout, "BITSTAMP_REST_TIMEOUT")

	// Tracker
	setDuration(&cfg.Tracker.FreshnessWindow, "TRACKER_FRESHNESS_WINDOW")
	setInt(&cfg.Tracker.RecentTrades, "TRACKER_RECENT_TRADES")

	// Postgres
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "REDIS_PREFIX")

	// S3
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// Pipeline
	setInt(&cfg.Pipeline.RecorderBatchSize, "PIPELINE_RECORDER_BATCH_SIZE")
	setDuration(&cfg.Pipeline.FlushInterval, "PIPELINE_FLUSH_INTERVAL")
	setDuration(&cfg.Pipeline.TickerInterval, "PIPELINE_TICKER_INTERVAL")
	setDuration(&cfg.Pipeline.WatchdogInterval, "PIPELINE_WATCHDOG_INTERVAL")
	setDuration(&cfg.Pipeline.ArchiveRetention, "PIPELINE_ARCHIVE_RETENTION")
	setStr(&cfg.Pipeline.ArchiveCron, "PIPELINE_ARCHIVE_CRON")
	setBool(&cfg.Pipeline.ArchivePrune, "PIPELINE_ARCHIVE_PRUNE")

	// Server
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogFormat, "LOG_FORMAT")
}

// lookup returns the non-empty value of COINWATCH_<key>. DATABASE_URL is
// also honoured unprefixed.
func lookup(key string) (string, bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v, true
	}
	if key == "DATABASE_URL" {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
	}
	return "", false
}

func setStr(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
