package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kosarica/catalog-ingest/config"
	"github.com/kosarica/catalog-ingest/internal/app"
	"github.com/kosarica/catalog-ingest/internal/handlers"
	"github.com/kosarica/catalog-ingest/internal/middleware"
	"github.com/kosarica/catalog-ingest/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Str("store_backend", cfg.Ingest.StoreBackend).Msg("Starting catalog ingest service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize telemetry")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize ingester")
	}
	defer a.Close()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	var health *handlers.HealthHandler
	if a.Pool != nil {
		health = handlers.NewHealthHandler(a.Pool)
	} else {
		health = handlers.NewHealthHandler(nil)
	}
	router.GET("/health", health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ingest := handlers.NewIngestHandler(a.Ingester, logger)
	limited := router.Group("/")
	limited.Use(middleware.RateLimitMiddleware(ctx, middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		BurstSize:         cfg.Server.BurstSize,
	}))
	{
		limited.GET("/fetch", ingest.FetchPriceFile)
		limited.POST("/fetch", ingest.FetchPriceFile)
		limited.POST("/events/storage", ingest.StorageEvent)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush telemetry")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Str("service", "catalog-ingest").Logger()
}
