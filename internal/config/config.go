// Package config defines the top-level configuration for the analysis
// gateway and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PAIRGATE_* environment
// variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Cache     CacheConfig     `toml:"cache"`
	Upstream  UpstreamConfig  `toml:"upstream"`
	Reasoning ReasoningConfig `toml:"reasoning"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Analyzer  AnalyzerConfig  `toml:"analyzer"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters. A non-empty DSN
// takes precedence over the discrete fields.
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

// CacheConfig controls the analysis cache.
type CacheConfig struct {
	// Backend selects the cache store: "postgres", "memory", or "none".
	Backend string `toml:"backend"`

	// TTL is how long a cached analysis stays valid.
	TTL duration `toml:"ttl"`

	// SweepOnStart removes expired entries during startup.
	SweepOnStart bool `toml:"sweep_on_start"`

	// SweepInterval runs a periodic expiry sweep. Zero disables it.
	SweepInterval duration `toml:"sweep_interval"`
}

// UpstreamConfig holds the metrics provider parameters.
type UpstreamConfig struct {
	BaseURL      string   `toml:"base_url"`
	Timeout      duration `toml:"timeout"`
	DefaultLimit int      `toml:"default_limit"`
}

// ReasoningConfig holds the reasoning backend parameters. An empty APIKey
// disables the reasoner.
type ReasoningConfig struct {
	BaseURL string   `toml:"base_url"`
	APIKey  string   `toml:"api_key"`
	Model   string   `toml:"model"`
	Timeout duration `toml:"timeout"`
}

// RedisConfig holds Redis connection parameters. Redis backs the signal bus
// and the gateway rate limiter; both are skipped when disabled.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for the expired-entry archive.
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

// AnalyzerConfig holds pipeline tunables.
type AnalyzerConfig struct {
	// Policy selects cache failure handling: "degrade" or "strict".
	Policy string `toml:"policy"`

	// DedupeInFlight collapses concurrent requests for the same pair into
	// one pipeline run.
	DedupeInFlight bool `toml:"dedupe_in_flight"`
}

// ServerConfig holds the HTTP gateway parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`

	// RateLimit is requests per window per client IP. Zero disables
	// limiting. Requires Redis.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "pairgate",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Cache: CacheConfig{
			Backend:      "postgres",
			TTL:          duration{24 * time.Hour},
			SweepOnStart: true,
		},
		Upstream: UpstreamConfig{
			BaseURL:      "http://localhost:3001",
			Timeout:      duration{30 * time.Second},
			DefaultLimit: 100,
		},
		Reasoning: ReasoningConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "qwen/qwen3-max",
			Timeout: duration{60 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pairgate-archive",
			ForcePathStyle: true,
		},
		Analyzer: AnalyzerConfig{
			Policy:         "degrade",
			DedupeInFlight: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitWindow: duration{time.Minute},
		},
		LogLevel: "info",
	}
}

// validCacheBackends enumerates the accepted values for Cache.Backend.
var validCacheBackends = map[string]bool{
	"postgres": true,
	"memory":   true,
	"none":     true,
}

// validPolicies enumerates the accepted values for Analyzer.Policy.
var validPolicies = map[string]bool{
	"degrade": true,
	"strict":  true,
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

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Cache
	backend := strings.ToLower(c.Cache.Backend)
	if !validCacheBackends[backend] {
		errs = append(errs, fmt.Sprintf("cache: unknown backend %q (valid: postgres, memory, none)", c.Cache.Backend))
	}
	if backend != "none" && c.Cache.TTL.Duration <= 0 {
		errs = append(errs, "cache: ttl must be > 0")
	}
	if c.Cache.SweepInterval.Duration < 0 {
		errs = append(errs, "cache: sweep_interval must not be negative")
	}

	// Database — only required when the postgres backend is selected.
	if backend == "postgres" && strings.TrimSpace(c.Database.DSN) == "" {
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

	// Upstream
	if c.Upstream.BaseURL == "" {
		errs = append(errs, "upstream: base_url must not be empty")
	}
	if c.Upstream.DefaultLimit <= 0 {
		errs = append(errs, "upstream: default_limit must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Analyzer
	if !validPolicies[strings.ToLower(c.Analyzer.Policy)] {
		errs = append(errs, fmt.Sprintf("analyzer: unknown policy %q (valid: degrade, strict)", c.Analyzer.Policy))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit > 0 {
		if !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
		if c.Server.RateLimitWindow.Duration <= 0 {
			errs = append(errs, "server: rate_limit_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// duration wraps time.Duration so TOML files can use "24h" / "30s" strings.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
