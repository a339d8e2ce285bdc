package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/pricescout/product-finder/internal/aggregator"
	"github.com/pricescout/product-finder/internal/api"
	"github.com/pricescout/product-finder/internal/browser"
	"github.com/pricescout/product-finder/internal/config"
	"github.com/pricescout/product-finder/internal/coordinator"
	"github.com/pricescout/product-finder/internal/database"
	"github.com/pricescout/product-finder/internal/extract"
	"github.com/pricescout/product-finder/internal/history"
	"github.com/pricescout/product-finder/internal/llm"
	"github.com/pricescout/product-finder/internal/pricing"
	"github.com/pricescout/product-finder/internal/provider"
	"github.com/pricescout/product-finder/internal/ratelimit"
	"github.com/pricescout/product-finder/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database connection
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis connection for the session store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Browser setup
	browserOpts := browser.DefaultOptions()
	browserOpts.Headless = cfg.Browser.Headless
	browserOpts.Timeout = cfg.Browser.Timeout
	b, err := browser.New(browserOpts)
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// Search history storage
	historyRepo := history.NewRepository(db, logger)
	if err := historyRepo.Migrate(ctx); err != nil {
		logger.Error("failed to run history migration", "error", err)
		os.Exit(1)
	}

	sessionStore := session.NewStore(redisClient, logger)

	// Product extraction pipeline
	llmClient := llm.NewClient(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
	extractor := extract.NewExtractor(llmClient, logger)

	fetcher := provider.NewPageFetcher(b, browser.FetchHints{
		SettleDelay: cfg.Browser.SettleDelay,
		Scrolls:     cfg.Browser.Scrolls,
		ScrollDelay: cfg.Browser.ScrollDelay,
	})

	// One adaptive limiter per platform so a slow marketplace backs off
	// without penalizing the others.
	newLimiter := func() ratelimit.RateLimiter {
		return ratelimit.NewAdaptiveRateLimiter(cfg.Search.RateLimitMin, cfg.Search.RateLimitMax)
	}

	registry := provider.NewRegistry(
		provider.NewJD(fetcher, extractor, newLimiter(), logger),
		provider.NewTaobao(fetcher, extractor, newLimiter(), logger),
		provider.NewPDD(fetcher, extractor, newLimiter(), logger),
	)

	validator := pricing.NewValidator(logger)
	agg := aggregator.New(validator, logger)
	coord := coordinator.New(registry, agg, logger)

	handlers := api.NewHandlers(coord, historyRepo, sessionStore, db, redisPinger{redisClient}, api.Defaults{
		MaxResultsPerPlatform: cfg.Search.MaxResultsPerPlatform,
		Parallel:              cfg.Search.Parallel,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Mount("/", handlers.Routes())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "platforms", registry.Platforms())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// redisPinger adapts the redis client to the health check interface.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
