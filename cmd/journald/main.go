// cmd/journald drains the action journal written by turnsync clients from
// Redis into PostgreSQL.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/turnsync/internal/cache"
	"github.com/jason-s-yu/turnsync/internal/config"
	"github.com/jason-s-yu/turnsync/internal/database"
	"github.com/jason-s-yu/turnsync/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.LoadDrain()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DB.DSN())
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	store := database.NewActionStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatalf("schema: %v", err)
	}

	d := historian.New(rdb, store, historian.Options{
		Queue:      cfg.Queue,
		BatchSize:  cfg.BatchSize,
		FlushDelay: cfg.FlushDelay,
	}, logger)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("journald exited: %v", err)
	}
	logger.Info("journald stopped")
}
