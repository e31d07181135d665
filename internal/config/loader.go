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
// built-in defaults, applies AFFID_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known AFFID_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Bitget ──
	setStr(&cfg.Bitget.BaseURL, "AFFID_BITGET_BASE_URL")
	setStr(&cfg.Bitget.ApiKey, "AFFID_BITGET_API_KEY")
	setStr(&cfg.Bitget.ApiSecret, "AFFID_BITGET_API_SECRET")
	setStr(&cfg.Bitget.ApiPassphrase, "AFFID_BITGET_API_PASSPHRASE")
	setInt(&cfg.Bitget.PageSize, "AFFID_BITGET_PAGE_SIZE")
	setInt(&cfg.Bitget.MaxRetries, "AFFID_BITGET_MAX_RETRIES")
	setDuration(&cfg.Bitget.RetryBackoff, "AFFID_BITGET_RETRY_BACKOFF")
	setInt(&cfg.Bitget.RequestsPerSec, "AFFID_BITGET_REQUESTS_PER_SEC")
	setDuration(&cfg.Bitget.RequestTimeout, "AFFID_BITGET_REQUEST_TIMEOUT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "AFFID_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "AFFID_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "AFFID_DATABASE_HOST")
	setInt(&cfg.Database.Port, "AFFID_DATABASE_PORT")
	setStr(&cfg.Database.Database, "AFFID_DATABASE_NAME")
	setStr(&cfg.Database.User, "AFFID_DATABASE_USER")
	setStr(&cfg.Database.Password, "AFFID_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "AFFID_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "AFFID_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "AFFID_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AFFID_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AFFID_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AFFID_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AFFID_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AFFID_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AFFID_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AFFID_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AFFID_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AFFID_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AFFID_S3_REGION")
	setStr(&cfg.S3.Bucket, "AFFID_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AFFID_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AFFID_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AFFID_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AFFID_S3_FORCE_PATH_STYLE")

	// ── ETL ──
	setInt64Slice(&cfg.ETL.Affiliates, "AFFID_ETL_AFFILIATES")
	setInt(&cfg.ETL.Workers, "AFFID_ETL_WORKERS")
	setInt(&cfg.ETL.Days, "AFFID_ETL_DAYS")
	setInt(&cfg.ETL.MaxRetries, "AFFID_ETL_MAX_RETRIES")
	setDuration(&cfg.ETL.RunTimeout, "AFFID_ETL_RUN_TIMEOUT")
	setDuration(&cfg.ETL.TimelinessThreshold, "AFFID_ETL_TIMELINESS_THRESHOLD")
	setStr(&cfg.ETL.LandingDir, "AFFID_ETL_LANDING_DIR")
	setDuration(&cfg.ETL.RefreshLockTTL, "AFFID_ETL_REFRESH_LOCK_TTL")
	setInt(&cfg.ETL.ArchiveRetentionDays, "AFFID_ETL_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setStr(&cfg.Server.Host, "AFFID_SERVER_HOST")
	setInt(&cfg.Server.Port, "AFFID_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AFFID_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AFFID_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AFFID_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AFFID_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AFFID_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AFFID_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "AFFID_LOG_LEVEL")
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

func setInt64Slice(dst *[]int64, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]int64, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if n, err := strconv.ParseInt(p, 10, 64); err == nil {
				cleaned = append(cleaned, n)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
