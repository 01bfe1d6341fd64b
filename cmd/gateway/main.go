package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brandao/cobranca-gateway-go/internal/bank"
	"github.com/brandao/cobranca-gateway-go/internal/config"
	"github.com/brandao/cobranca-gateway-go/internal/domain"
	"github.com/brandao/cobranca-gateway-go/internal/handler"
	"github.com/brandao/cobranca-gateway-go/internal/infra/cache"
	"github.com/brandao/cobranca-gateway-go/internal/infra/observability"
	"github.com/brandao/cobranca-gateway-go/internal/infra/resilience"
	"github.com/brandao/cobranca-gateway-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("environment", string(cfg.Environment)),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("status_cache_ttl", cfg.StatusCacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("configured_banks", len(cfg.Banks)),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "cobranca-gateway")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	statusCache := cache.New[domain.ChargeStatus](cfg.StatusCacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Bank adapters ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	registry, err := bank.NewRegistry(cfg.Banks, bank.Deps{
		HTTPClient: httpClient,
		Resilience: resilienceCfg,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to build bank adapters", zap.Error(err))
	}
	for _, info := range registry.Catalogue() {
		logger.Info("bank adapter ready",
			zap.String("code", info.Code),
			zap.String("name", info.Name),
			zap.Bool("implemented", info.Implemented),
		)
	}

	// --- Services ---
	chargeSvc := service.NewChargeService(registry, statusCache, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(chargeSvc, metrics, cfg.APIKeyHash, logger)

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
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
