package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeObserve, cfg.Mode)
	assert.Equal(t, "btcusd", cfg.Bitstamp.Pair)
	assert.Equal(t, 60*time.Second, cfg.Tracker.FreshnessWindow.Duration)
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "record"

[bitstamp]
pair = "ethusd"

[tracker]
freshness_window = "30s"

[pipeline]
flush_interval = "2s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeRecord, cfg.Mode)
	assert.Equal(t, "ethusd", cfg.Bitstamp.Pair)
	assert.Equal(t, 30*time.Second, cfg.Tracker.FreshnessWindow.Duration)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.FlushInterval.Duration)
	// untouched keys keep their defaults
	assert.Equal(t, "de504dc5763aeef9ff52", cfg.Bitstamp.PusherKey)
	assert.Equal(t, 100, cfg.Pipeline.RecorderBatchSize)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COINWATCH_MODE", "server")
	t.Setenv("COINWATCH_BITSTAMP_PAIR", "btceur")
	t.Setenv("COINWATCH_SERVER_PORT", "9090")
	t.Setenv("COINWATCH_SERVER_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("COINWATCH_TRACKER_FRESHNESS_WINDOW", "90s")
	t.Setenv("COINWATCH_SERVER_RATE_LIMIT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeServer, cfg.Mode)
	assert.Equal(t, "btceur", cfg.Bitstamp.Pair)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.Tracker.FreshnessWindow.Duration)
	assert.Equal(t, 0, cfg.Server.RateLimit, "unparsable values are ignored")
}

func TestLoad_DatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db/coinwatch")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/coinwatch", cfg.Postgres.DSN)
}

func TestLoad_BadFile(t *testing.T) {
	path := writeTOML(t, `[tracker]
freshness_window = "soon"`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: decode")
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Bitstamp.Pair = ""
	cfg.Tracker.FreshnessWindow.Duration = 0
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "bitstamp: pair must not be empty")
	assert.Contains(t, msg, "tracker: freshness_window must be > 0")
	assert.Contains(t, msg, "notify: telegram_token and telegram_chat_id must be set together")
}

func TestValidate_ModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "FULL"
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = "trades"
	cfg.S3.Region = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, ModeFull, cfg.Mode, "mode is normalised")
	assert.Contains(t, err.Error(), "postgres: host must not be empty")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
	assert.Contains(t, err.Error(), "s3: region must not be empty")

	observe := Defaults()
	observe.Postgres.Host = ""
	observe.Redis.Addr = ""
	assert.NoError(t, observe.Validate(), "observe mode needs no backends")
}

func TestModeHelpers(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesRedis())
	assert.False(t, cfg.UsesServer())

	cfg.Mode = ModeFull
	assert.True(t, cfg.UsesPostgres())
	assert.True(t, cfg.UsesRedis())
	assert.True(t, cfg.UsesServer())
	assert.False(t, cfg.UsesArchive(), "no bucket configured")
	cfg.S3.Bucket = "trades"
	assert.True(t, cfg.UsesArchive())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Redis.Password = "rpw"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "key"
	cfg.Server.CORSOrigins = []string{"https://a.example"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Redis.Password)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.S3.AccessKey, "empty values stay empty")

	assert.Equal(t, "pw", cfg.Postgres.Password, "original is untouched")
	out.Server.CORSOrigins[0] = "changed"
	assert.Equal(t, "https://a.example", cfg.Server.CORSOrigins[0])
}
