// Package config defines the coinwatch configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Run modes.
const (
	ModeObserve = "observe"
	ModeRecord  = "record"
	ModeServer  = "server"
	ModeFull    = "full"
)

// Config is the root configuration. Fields are decoded from TOML and then
// overridden by COINWATCH_* environment variables.
type Config struct {
	Bitstamp BitstampConfig `toml:"bitstamp"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	// LogFormat is "json" or "text".
	LogFormat string `toml:"log_format"`
}

// BitstampConfig selects the market and the exchange endpoints.
type BitstampConfig struct {
	Pair          string `toml:"pair"`
	PusherKey     string `toml:"pusher_key"`
	PusherCluster string `toml:"pusher_cluster"`
	// WSURL overrides the URL built from the Pusher key and cluster.
	WSURL       string   `toml:"ws_url"`
	RESTURL     string   `toml:"rest_url"`
	RESTTimeout duration `toml:"rest_timeout"`
}

// TrackerConfig tunes the market state tracker.
type TrackerConfig struct {
	FreshnessWindow duration `toml:"freshness_window"`
	RecentTrades    int      `toml:"recent_trades"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Prefix       string `toml:"prefix"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds the trade archive bucket.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PipelineConfig tunes the background stages.
type PipelineConfig struct {
	RecorderBatchSize int      `toml:"recorder_batch_size"`
	FlushInterval     duration `toml:"flush_interval"`
	QueueSize         int      `toml:"queue_size"`
	// TickerInterval polls the REST ticker; zero disables polling.
	TickerInterval   duration `toml:"ticker_interval"`
	WatchdogInterval duration `toml:"watchdog_interval"`
	ArchiveRetention duration `toml:"archive_retention"`
	ArchiveCron      string   `toml:"archive_cron"`
	ArchivePrune     bool     `toml:"archive_prune"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Bitstamp: BitstampConfig{
			Pair:        "btcusd",
			PusherKey:   "de504dc5763aeef9ff52",
			RESTURL:     "https://www.bitstamp.net/api/",
			RESTTimeout: duration{10 * time.Second},
		},
		Tracker: TrackerConfig{
			FreshnessWindow: duration{60 * time.Second},
			RecentTrades:    1000,
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "coinwatch",
			User:           "coinwatch",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			Prefix:       "coinwatch",
			StreamMaxLen: 100000,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Pipeline: PipelineConfig{
			RecorderBatchSize: 100,
			FlushInterval:     duration{5 * time.Second},
			QueueSize:         1024,
			TickerInterval:    duration{30 * time.Second},
			WatchdogInterval:  duration{10 * time.Second},
			ArchiveRetention:  duration{30 * 24 * time.Hour},
			ArchiveCron:       "0 3 * * *",
		},
		Server: ServerConfig{
			Port:            8080,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"feed.stale", "feed.recovered", "archive.failed"},
		},
		Mode:      ModeObserve,
		LogLevel:  "info",
		LogFormat: "json",
	}
}

var validModes = map[string]bool{
	ModeObserve: true,
	ModeRecord:  true,
	ModeServer:  true,
	ModeFull:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesPostgres reports whether the mode persists trades.
func (c *Config) UsesPostgres() bool { return c.Mode == ModeRecord || c.Mode == ModeFull }

// UsesRedis reports whether the mode mirrors state into Redis.
func (c *Config) UsesRedis() bool { return c.Mode != ModeObserve }

// UsesServer reports whether the mode serves HTTP.
func (c *Config) UsesServer() bool { return c.Mode == ModeServer || c.Mode == ModeFull }

// UsesArchive reports whether the mode archives to S3.
func (c *Config) UsesArchive() bool { return c.Mode == ModeFull && c.S3.Bucket != "" }

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: observe, record, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Sprintf("unknown log_format %q (valid: json, text)", c.LogFormat))
	}

	if strings.TrimSpace(c.Bitstamp.Pair) == "" {
		errs = append(errs, "bitstamp: pair must not be empty")
	}
	if c.Bitstamp.WSURL == "" && c.Bitstamp.PusherKey == "" {
		errs = append(errs, "bitstamp: pusher_key or ws_url must be set")
	}
	if c.Bitstamp.RESTTimeout.Duration <= 0 {
		errs = append(errs, "bitstamp: rest_timeout must be > 0")
	}

	if c.Tracker.FreshnessWindow.Duration <= 0 {
		errs = append(errs, "tracker: freshness_window must be > 0")
	}
	if c.Tracker.RecentTrades < 1 {
		errs = append(errs, "tracker: recent_trades must be >= 1")
	}

	if c.UsesPostgres() {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
		if c.Pipeline.RecorderBatchSize < 1 {
			errs = append(errs, "pipeline: recorder_batch_size must be >= 1")
		}
		if c.Pipeline.FlushInterval.Duration <= 0 {
			errs = append(errs, "pipeline: flush_interval must be > 0")
		}
	}

	if c.UsesRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.UsesServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if c.Mode == ModeFull && c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.Pipeline.ArchiveRetention.Duration <= 0 {
			errs = append(errs, "pipeline: archive_retention must be > 0")
		}
		if c.Pipeline.ArchiveCron == "" {
			errs = append(errs, "pipeline: archive_cron must not be empty")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
