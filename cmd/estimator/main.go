package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/config"
	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/handler"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/cache"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/client"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/memory"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/observability"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/postgres"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/rediscache"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/resilience"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/supabase"
	"github.com/boddenberg/impots-bj-estimator/internal/port"
	"github.com/boddenberg/impots-bj-estimator/internal/service"
	"github.com/boddenberg/impots-bj-estimator/internal/tax/calc"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "read .env: %v\n", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("constants_backend", cfg.ConstantsBackend),
		zap.Bool("constants_strict", cfg.ConstantsStrict),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Bool("summarizer", cfg.SummarizerURL != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "impots-bj-estimator", cfg.OTelEnabled)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Constants store ---
	var (
		store  port.ConstantsStore
		probes []handler.Probe
	)
	switch cfg.ConstantsBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as constants backend", zap.String("supabase_url", cfg.SupabaseURL))
		sb := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", supabase.IsNotFound),
			resilienceCfg,
			logger,
		)
		store = supabase.NewConstantsStore(sb)

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DatabaseMaxConns))
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		if cfg.RunMigrations {
			if err := postgres.RunMigrations(pool); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
			logger.Info("database migrations applied")
		}
		pg := postgres.NewConstantsStore(pool, resilience.NewCircuitBreaker("postgres"), resilienceCfg, logger)
		store = pg
		probes = append(probes, handler.Probe{Name: "postgres", Check: pg.Ping})

	default:
		mem, err := memoryStore(cfg.ConstantsSeed)
		if err != nil {
			logger.Fatal("failed to load constants seed", zap.Error(err))
		}
		logger.Info("using in-memory constants backend", zap.String("seed", cfg.ConstantsSeed))
		store = mem
	}

	// --- Cache ---
	local := cache.New[domain.Constants](cfg.CacheTTL)
	defer local.Close()

	var (
		shared port.SharedConstantsCache
		bus    port.InvalidationBus
	)
	if cfg.RedisAddr != "" {
		rdb := rediscache.NewClient(rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		rc := rediscache.NewConstantsCache(rdb, cfg.CacheTTL, logger)
		shared = rc
		bus = rediscache.NewBus(rdb, logger)
		probes = append(probes, handler.Probe{Name: "redis", Check: rc.Ping})
		logger.Info("redis constants tier enabled", zap.String("addr", cfg.RedisAddr))
	}

	// --- Services ---
	constantsSvc := service.NewConstantsService(store, cfg.ConstantsBackend, local, shared, bus, metrics, logger)
	if err := constantsSvc.Subscribe(ctx); err != nil {
		// Replicas then only see their own invalidations until restart.
		logger.Error("failed to subscribe to constants invalidations", zap.Error(err))
	}

	availability, err := service.NewAvailability(calc.Registry(), cfg.TaxAvailability)
	if err != nil {
		logger.Fatal("invalid tax availability", zap.Error(err))
	}

	estimator := service.NewEstimator(
		availability,
		constantsSvc,
		port.SystemClock,
		service.EstimatorOptions{Strict: cfg.ConstantsStrict, MaxConcurrency: cfg.MaxConcurrency},
		metrics,
		logger,
	)

	var agent port.SummaryAgent
	if cfg.SummarizerURL != "" {
		agent = client.NewSummarizerClient(httpClient, cfg.SummarizerURL, resilience.NewCircuitBreaker("summarizer"), resilienceCfg)
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Estimator:   estimator,
		Profiler:    service.NewProfiler(port.SystemClock, logger),
		Summarizer:  service.NewSummarizer(agent, metrics, logger),
		Constants:   constantsSvc,
		Probes:      probes,
		AdminAPIKey: cfg.AdminAPIKey,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func memoryStore(seedPath string) (*memory.ConstantsStore, error) {
	if seedPath == "" {
		return memory.NewConstantsStore(), nil
	}
	b, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, err
	}
	return memory.LoadSeed(b)
}
