package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CARBONDESK_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CARBONDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Registry ──
	setStr(&cfg.Registry.BaseURL, "CARBONDESK_REGISTRY_BASE_URL")
	setStr(&cfg.Registry.WSURL, "CARBONDESK_REGISTRY_WS_URL")
	setStr(&cfg.Registry.APIKey, "CARBONDESK_REGISTRY_API_KEY")
	setStr(&cfg.Registry.APISecret, "CARBONDESK_REGISTRY_API_SECRET")
	setStr(&cfg.Registry.EncryptedSecretPath, "CARBONDESK_REGISTRY_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Registry.SecretPassword, "CARBONDESK_REGISTRY_SECRET_PASSWORD")
	setStr(&cfg.Registry.Passphrase, "CARBONDESK_REGISTRY_PASSPHRASE")
	setDuration(&cfg.Registry.Timeout, "CARBONDESK_REGISTRY_TIMEOUT")

	// ── Sync ──
	setStr(&cfg.Sync.CertificateType, "CARBONDESK_SYNC_CERTIFICATE_TYPE")
	setDuration(&cfg.Sync.Interval, "CARBONDESK_SYNC_INTERVAL")
	setInt(&cfg.Sync.TradeLimit, "CARBONDESK_SYNC_TRADE_LIMIT")
	setDuration(&cfg.Sync.PollInterval, "CARBONDESK_SYNC_POLL_INTERVAL")
	setDuration(&cfg.Sync.SocketSettleDelay, "CARBONDESK_SYNC_SOCKET_SETTLE_DELAY")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CARBONDESK_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CARBONDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CARBONDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CARBONDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CARBONDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CARBONDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CARBONDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CARBONDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CARBONDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CARBONDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CARBONDESK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CARBONDESK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CARBONDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CARBONDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CARBONDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CARBONDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CARBONDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CARBONDESK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CARBONDESK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CARBONDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CARBONDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "CARBONDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CARBONDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CARBONDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CARBONDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CARBONDESK_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setDuration(&cfg.Archive.Interval, "CARBONDESK_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.TradeRetentionDays, "CARBONDESK_ARCHIVE_TRADE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchLimit, "CARBONDESK_ARCHIVE_BATCH_LIMIT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CARBONDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CARBONDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CARBONDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CARBONDESK_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CARBONDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CARBONDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CARBONDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CARBONDESK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CARBONDESK_MODE")
	setStr(&cfg.LogLevel, "CARBONDESK_LOG_LEVEL")
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
