package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantpair/pairgate/internal/analyzer"
	s3blob "github.com/quantpair/pairgate/internal/blob/s3"
	"github.com/quantpair/pairgate/internal/cache/redis"
	"github.com/quantpair/pairgate/internal/config"
	"github.com/quantpair/pairgate/internal/domain"
	"github.com/quantpair/pairgate/internal/reasoning"
	"github.com/quantpair/pairgate/internal/server"
	"github.com/quantpair/pairgate/internal/server/handler"
	"github.com/quantpair/pairgate/internal/server/ws"
	"github.com/quantpair/pairgate/internal/store/memory"
	"github.com/quantpair/pairgate/internal/store/postgres"
	"github.com/quantpair/pairgate/internal/upstream"
)

// Dependencies bundles everything the application lifecycle needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	CacheStore  domain.AnalysisCacheStore // nil when caching is disabled
	RateLimiter domain.RateLimiter        // nil without Redis
	SignalBus   domain.SignalBus          // nil without Redis
	Archiver    *s3blob.Archiver          // nil without S3 or cache

	Orchestrator *analyzer.Orchestrator
	AgentHub     *ws.Hub
	Server       *server.Server
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Cache store ---
	switch strings.ToLower(cfg.Cache.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.CacheStore = postgres.NewAnalysisCacheStore(pgClient.Pool())

	case "memory":
		deps.CacheStore = memory.NewAnalysisCacheStore()

	case "none":
		logger.InfoContext(ctx, "caching disabled; every request runs the full pipeline")
	}

	// --- Redis (signal bus + rate limiter) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 expired-entry archive ---
	if cfg.S3.Enabled && deps.CacheStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.CacheStore)
	}

	// --- Pipeline stages ---
	strict := strings.ToLower(cfg.Analyzer.Policy) == "strict"

	fetcher := upstream.NewFetcher(upstream.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout.Duration,
	}, strict, logger)

	// The reasoner stays nil without an API key; the gateway then reports
	// itself degraded instead of failing requests with opaque auth errors.
	var reasoner analyzer.Reasoner
	if cfg.Reasoning.APIKey != "" {
		client, err := reasoning.NewClient(reasoning.Config{
			BaseURL: cfg.Reasoning.BaseURL,
			APIKey:  cfg.Reasoning.APIKey,
			Model:   cfg.Reasoning.Model,
			Timeout: cfg.Reasoning.Timeout.Duration,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: reasoning: %w", err)
		}
		reasoner = client
	} else {
		logger.WarnContext(ctx, "no reasoning API key configured; analysis requests will be rejected")
	}

	policy := analyzer.FailDegrade
	if strict {
		policy = analyzer.FailStrict
	}

	deps.Orchestrator = analyzer.New(analyzer.Config{
		TTL:            cfg.Cache.TTL.Duration,
		DefaultLimit:   cfg.Upstream.DefaultLimit,
		Policy:         policy,
		DedupeInFlight: cfg.Analyzer.DedupeInFlight,
	}, deps.CacheStore, fetcher, reasoner, deps.SignalBus, logger)

	// --- Gateways ---
	deps.AgentHub = ws.NewHub(deps.Orchestrator, deps.SignalBus, logger)

	var stats handler.StatsSource
	if deps.CacheStore != nil {
		stats = deps.CacheStore
	}
	var maintenance handler.CacheMaintenance
	if deps.CacheStore != nil {
		maintenance = deps.CacheStore
	}
	var archiver handler.ExpiredArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Orchestrator, stats, handler.HealthInfo{
			AgentRunning: true,
			AgentAddress: deps.AgentHub.ID(),
		}, logger),
		Analyze: handler.NewAnalyzeHandler(deps.Orchestrator, logger),
		Cache:   handler.NewCacheHandler(maintenance, archiver, logger),
	}

	deps.Server = server.NewServer(server.Config{
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		APIKey:          cfg.Server.APIKey,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitWindow: cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.AgentHub, deps.RateLimiter, logger)

	return deps, cleanup, nil
}
