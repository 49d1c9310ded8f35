/**
 * @description
 * Standalone schema migration entry point. Connects to the configured
 * database, applies the idempotent DDL, and exits. Useful for deploy
 * pipelines where the server boots with RUN_MIGRATIONS=false.
 */

package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/payvault/ledger-service/internal/config"
	"github.com/payvault/ledger-service/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.WithError(err).Fatal("config load failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dbpool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer dbpool.Close()

	repository := store.NewPostgresRepository(dbpool)
	if err := repository.Migrate(ctx); err != nil {
		logger.WithError(err).Fatal("schema migration failed")
	}

	logger.Info("schema migrated")
}
