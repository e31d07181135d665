// Package config defines the top-level configuration for the affiliate data
// platform and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AFFID_* environment variables.
type Config struct {
	Bitget   BitgetConfig   `toml:"bitget"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	ETL      ETLConfig      `toml:"etl"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// BitgetConfig holds exchange affiliate API endpoints and credentials.
type BitgetConfig struct {
	BaseURL        string   `toml:"base_url"`
	ApiKey         string   `toml:"api_key"`
	ApiSecret      string   `toml:"api_secret"`
	ApiPassphrase  string   `toml:"api_passphrase"`
	PageSize       int      `toml:"page_size"`
	MaxRetries     int      `toml:"max_retries"`
	RetryBackoff   duration `toml:"retry_backoff"`
	RequestsPerSec int      `toml:"requests_per_sec"`
	RequestTimeout duration `toml:"request_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for bronze archival.
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

// ETLConfig holds pipeline scheduling and retry parameters.
type ETLConfig struct {
	// Affiliates are the affiliate account ids to extract for.
	Affiliates []int64 `toml:"affiliates"`
	// Workers bounds the number of concurrently running table jobs.
	Workers int `toml:"workers"`
	// Days is the default trailing extraction window.
	Days int `toml:"days"`
	// MaxRetries caps per-record re-ingestion attempts across scheduled runs.
	MaxRetries int `toml:"max_retries"`
	// RunTimeout aborts a stuck table run and reports ERROR.
	RunTimeout duration `toml:"run_timeout"`
	// TimelinessThreshold is the load-to-event latency beyond which a record
	// counts against the timeliness score.
	TimelinessThreshold duration `toml:"timeliness_threshold"`
	// LandingDir is where raw API pages are captured before ingestion.
	LandingDir string `toml:"landing_dir"`
	// RefreshLockTTL bounds how long the gold refresh advisory lock is held.
	RefreshLockTTL duration `toml:"refresh_lock_ttl"`
	// ArchiveRetentionDays: bronze rows older than this are archived to S3.
	ArchiveRetentionDays int `toml:"archive_retention_days"`
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

// ServerConfig holds dashboard HTTP server parameters.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Bitget: BitgetConfig{
			BaseURL:        "https://api.bitget.com",
			PageSize:       100,
			MaxRetries:     3,
			RetryBackoff:   duration{2 * time.Second},
			RequestsPerSec: 5,
			RequestTimeout: duration{30 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "affiliate_data",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "affiliate-bronze-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		ETL: ETLConfig{
			Affiliates:           []int64{},
			Workers:              4,
			Days:                 7,
			MaxRetries:           3,
			RunTimeout:           duration{10 * time.Minute},
			TimelinessThreshold:  duration{24 * time.Hour},
			LandingDir:           "data/bronze",
			RefreshLockTTL:       duration{5 * time.Minute},
			ArchiveRetentionDays: 90,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"run_error", "refresh_blocked"},
		},
		LogLevel: "info",
	}
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

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Bitget — credentials must be set together, or all empty (file-only mode).
	bk := c.Bitget.ApiKey != ""
	bs := c.Bitget.ApiSecret != ""
	bp := c.Bitget.ApiPassphrase != ""
	if bk || bs || bp {
		if !(bk && bs && bp) {
			errs = append(errs, "bitget: api_key, api_secret, and api_passphrase must all be set together")
		}
	}
	if c.Bitget.BaseURL == "" {
		errs = append(errs, "bitget: base_url must not be empty")
	}
	if c.Bitget.PageSize < 1 || c.Bitget.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("bitget: page_size must be 1-1000, got %d", c.Bitget.PageSize))
	}
	if c.Bitget.MaxRetries < 0 {
		errs = append(errs, "bitget: max_retries must be >= 0")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only checked when archival is enabled.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// ETL
	if c.ETL.Workers < 1 {
		errs = append(errs, "etl: workers must be >= 1")
	}
	if c.ETL.Days < 1 {
		errs = append(errs, "etl: days must be >= 1")
	}
	if c.ETL.MaxRetries < 0 {
		errs = append(errs, "etl: max_retries must be >= 0")
	}
	if c.ETL.RunTimeout.Duration <= 0 {
		errs = append(errs, "etl: run_timeout must be > 0")
	}
	if c.ETL.TimelinessThreshold.Duration <= 0 {
		errs = append(errs, "etl: timeliness_threshold must be > 0")
	}
	if c.ETL.LandingDir == "" {
		errs = append(errs, "etl: landing_dir must not be empty")
	}
	if c.ETL.ArchiveRetentionDays < 1 {
		errs = append(errs, "etl: archive_retention_days must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
