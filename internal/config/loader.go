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
// built-in defaults, applies environment variable overrides, and returns the
// final Config. An empty path skips the file and uses defaults plus
// environment. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAIRGATE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. A few
// unprefixed aliases are honored for compatibility with existing deployments.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "PAIRGATE_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "PAIRGATE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PAIRGATE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PAIRGATE_DATABASE_NAME")
	setStr(&cfg.Database.User, "PAIRGATE_DATABASE_USER")
	setStr(&cfg.Database.Password, "PAIRGATE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PAIRGATE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "PAIRGATE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PAIRGATE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PAIRGATE_DATABASE_RUN_MIGRATIONS")

	// ── Cache ──
	setStr(&cfg.Cache.Backend, "PAIRGATE_CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "PAIRGATE_CACHE_TTL")
	setDurationHours(&cfg.Cache.TTL, "CACHE_TTL_HOURS") // compatibility alias
	setBool(&cfg.Cache.SweepOnStart, "PAIRGATE_CACHE_SWEEP_ON_START")
	setDuration(&cfg.Cache.SweepInterval, "PAIRGATE_CACHE_SWEEP_INTERVAL")

	// ── Upstream ──
	setStr(&cfg.Upstream.BaseURL, "PAIRGATE_UPSTREAM_BASE_URL")
	setStr(&cfg.Upstream.BaseURL, "AGENT_API_BASE") // compatibility alias
	setDuration(&cfg.Upstream.Timeout, "PAIRGATE_UPSTREAM_TIMEOUT")
	setInt(&cfg.Upstream.DefaultLimit, "PAIRGATE_UPSTREAM_DEFAULT_LIMIT")

	// ── Reasoning ──
	setStr(&cfg.Reasoning.BaseURL, "PAIRGATE_REASONING_BASE_URL")
	setStr(&cfg.Reasoning.BaseURL, "OPENROUTER_BASE_URL") // compatibility alias
	setStr(&cfg.Reasoning.APIKey, "PAIRGATE_REASONING_API_KEY")
	setStr(&cfg.Reasoning.APIKey, "OPENROUTER_API_KEY") // compatibility alias
	setStr(&cfg.Reasoning.Model, "PAIRGATE_REASONING_MODEL")
	setStr(&cfg.Reasoning.Model, "QWEN_MODEL") // compatibility alias
	setDuration(&cfg.Reasoning.Timeout, "PAIRGATE_REASONING_TIMEOUT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PAIRGATE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAIRGATE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAIRGATE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAIRGATE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAIRGATE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAIRGATE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAIRGATE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PAIRGATE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PAIRGATE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAIRGATE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAIRGATE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAIRGATE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAIRGATE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAIRGATE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAIRGATE_S3_FORCE_PATH_STYLE")

	// ── Analyzer ──
	setStr(&cfg.Analyzer.Policy, "PAIRGATE_ANALYZER_POLICY")
	setBool(&cfg.Analyzer.DedupeInFlight, "PAIRGATE_ANALYZER_DEDUPE_IN_FLIGHT")

	// ── Server ──
	setInt(&cfg.Server.Port, "PAIRGATE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAIRGATE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAIRGATE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PAIRGATE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "PAIRGATE_SERVER_RATE_LIMIT_WINDOW")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PAIRGATE_LOG_LEVEL")
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

// setDurationHours reads a plain hour count ("24") into a duration field.
func setDurationHours(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
			dst.Duration = time.Duration(n * float64(time.Hour))
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
