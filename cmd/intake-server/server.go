package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/healthie-intake/intake-api/internal/config"
	"github.com/healthie-intake/intake-api/internal/domain/intake"
	"github.com/healthie-intake/intake-api/internal/platform/apperr"
	"github.com/healthie-intake/intake-api/internal/platform/db"
	"github.com/healthie-intake/intake-api/internal/platform/healthie"
	"github.com/healthie-intake/intake-api/internal/platform/middleware"
	"github.com/healthie-intake/intake-api/internal/platform/openapi"
)

const (
	serviceName    = "Healthie Intake API"
	serviceVersion = "1.0.0"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// storage is the opened intake store plus what the health endpoints need.
type storage struct {
	driver string
	repo   intake.Repository
	stats  func() *db.PoolStats
	close  func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Int32("max_conns", cfg.DBMaxConns).Msg("connected to postgres")

		if cfg.AutoMigrate {
			applied, err := db.NewMigrator(pool, cfg.MigrationsDir, cfg.DBSchema).Up(ctx)
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info().Strs("applied", applied).Msg("migrations up to date")
		}
		return &storage{
			driver: cfg.StorageDriver,
			repo:   intake.NewRepoPG(pool),
			stats:  func() *db.PoolStats { return db.GetPoolStats(pool) },
			close:  pool.Close,
		}, nil

	case config.DriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo, err := intake.NewRepoSQLite(ctx, sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite store")
		return &storage{
			driver: cfg.StorageDriver,
			repo:   repo,
			stats:  func() *db.PoolStats { return db.GetSQLStats(sqlDB) },
			close:  func() { _ = sqlDB.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}

// newServer wires middleware and routes. It does not start listening.
func newServer(cfg *config.Config, logger zerolog.Logger, store *storage, api healthie.API) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowCredentials: true,
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.Audit(logger))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"name":    serviceName,
			"version": serviceVersion,
			"status":  "running",
		})
	})
	e.GET("/health", db.HealthHandler(db.HealthInfo{
		Driver:             store.driver,
		Storage:            store.repo,
		HealthieConfigured: cfg.HealthieConfigured(),
		HealthieURL:        cfg.HealthieAPIURL,
	}))
	e.GET("/health/db", db.PoolHealthHandler(store.repo, store.stats))

	apiGroup := e.Group("/api")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	if cfg.RateLimitBurst > 0 {
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiGroup.Use(middleware.RateLimit(rateLimitCfg))

	intake.NewHandler(intake.NewService(store.repo), logger).RegisterRoutes(apiGroup)
	healthie.NewHandler(api, logger).RegisterRoutes(apiGroup)
	openapi.NewGenerator(serviceName, serviceVersion, "http://localhost:"+cfg.Port).RegisterRoutes(apiGroup)

	return e
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx := context.Background()
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.close()

	if !cfg.HealthieConfigured() {
		logger.Warn().Msg("HEALTHIE_API_KEY is not set; Healthie endpoints will fail")
	}
	client := healthie.NewClient(healthie.Options{
		URL:          cfg.HealthieAPIURL,
		APIKey:       cfg.HealthieAPIKey,
		Retries:      cfg.HealthieRetries,
		Timeout:      cfg.HealthieTimeout,
		RetryWaitMin: cfg.HealthieRetryWaitMin,
		RetryWaitMax: cfg.HealthieRetryWaitMax,
		Logger:       logger,
	})

	e := newServer(cfg, logger, store, client)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", store.driver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
