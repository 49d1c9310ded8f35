/**
 * @description
 * This is the main entry point for the ledger-service. It is responsible for
 * initializing all components of the service, including configuration, the
 * database connection pool, the optional Redis rate limiter, the repository,
 * the core application service, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - github.com/sirupsen/logrus: Structured logging.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/payvault/ledger-service/internal/api"
	"github.com/payvault/ledger-service/internal/app"
	"github.com/payvault/ledger-service/internal/config"
	"github.com/payvault/ledger-service/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.WithError(err).Fatal("config load failed")
	}
	if level, parseErr := logrus.ParseLevel(cfg.LogLevel); parseErr == nil {
		logger.SetLevel(level)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Fatal("jwt secret must be configured (JWT_SECRET)")
	}

	logger.WithField("port", cfg.ServerPort).Info("starting ledger-service")

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database url parse failed")
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer dbpool.Close()
	logger.Info("database connected")

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	if cfg.RunMigrations {
		migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
		if err := repository.Migrate(migrateCtx); err != nil {
			cancelMigrate()
			logger.WithError(err).Fatal("schema migration failed")
		}
		cancelMigrate()
		logger.Info("schema migrated")
	}

	// Connect to Redis for per-minute API key rate limiting. A missing or
	// unreachable Redis degrades to no minute-window limiting rather than
	// preventing boot.
	var rateLimiter *app.RedisRateLimiter
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("redis url missing; per-minute rate limiting disabled (REDIS_URL)")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			logger.WithError(parseErr).Warn("redis url parse failed; per-minute rate limiting disabled")
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancelPing()
			if pingErr != nil {
				logger.WithError(pingErr).Warn("redis ping failed; per-minute rate limiting disabled")
				redisClient.Close()
			} else {
				defer redisClient.Close()
				rateLimiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				logger.Info("redis connected")
			}
		}
	}

	// Initialize the core application service with its dependencies.
	ledgerService := app.NewService(repository, rateLimiter, logger, cfg.JWTSecret)

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(ledgerService, logger)
	router := api.Routes(handlers, ledgerService, cfg.JWTSecret)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	logger.WithField("addr", serverAddr).Info("server listening")

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server stopped unexpectedly")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown failed")
	}

	logger.Info("shutdown complete")
}
