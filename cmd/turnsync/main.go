// cmd/turnsync/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/turnsync/internal/auth"
	"github.com/jason-s-yu/turnsync/internal/bridge"
	"github.com/jason-s-yu/turnsync/internal/cache"
	"github.com/jason-s-yu/turnsync/internal/config"
	"github.com/jason-s-yu/turnsync/internal/database"
	"github.com/jason-s-yu/turnsync/internal/matchclient"
	"github.com/jason-s-yu/turnsync/internal/middleware"
	"github.com/jason-s-yu/turnsync/internal/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	tokens := auth.NewTokenSource(cfg.Token)
	claims, err := auth.ParseClaims(cfg.Token)
	if err != nil {
		logger.Fatalf("token: %v", err)
	}
	if claims.Expired(time.Now()) {
		logger.Warnf("token for %s expired at %s", claims.Username, claims.ExpiresAt)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var journal session.Journal
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Warnf("action journal disabled: %v", err)
		} else {
			j := cache.NewJournal(rdb, cfg.JournalQueue)
			defer j.Close()
			journal = j
		}
	}

	var results session.ResultStore
	if cfg.DB.Enabled() {
		pool, err := database.Connect(ctx, cfg.DB.DSN())
		if err != nil {
			logger.Warnf("result storage disabled: %v", err)
		} else {
			defer pool.Close()
			store := database.NewResultStore(pool)
			if err := store.EnsureSchema(ctx); err != nil {
				logger.Warnf("result storage disabled: %v", err)
			} else {
				results = store
			}
		}
	}

	client := matchclient.New(cfg.ServiceURL, tokens, cfg.HTTPTimeout, logger)
	hub := bridge.NewHub(logger)

	sess := session.New(client, hub, hub, session.Options{
		Variant:        cfg.Variant,
		Username:       claims.Username,
		StatusInterval: cfg.StatusInterval,
		RosterInterval: cfg.RosterInterval,
		PingInterval:   cfg.PingInterval,
		ReplayPace:     cfg.ReplayPace,
		FinalCountdown: cfg.FinalCountdown,
		Logger:         logger,
		Journal:        journal,
		Results:        results,
	})
	hub.Attach(sess)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(hub.Handler()))
	srv := &http.Server{Addr: cfg.BridgeAddr, Handler: mux}

	logger.WithFields(logrus.Fields{
		"player":  claims.Username,
		"variant": cfg.Variant,
		"session": sess.ID,
	}).Infof("Running bridge on %s", cfg.BridgeAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer stop()
		sess.Start()
		err := sess.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		stopOnLeave(gctx, hub.Done(), stop, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("turnsync exited: %v", err)
	}
	logger.Info("turnsync stopped")
}

// stopOnLeave calls stop once the session has navigated away.
func stopOnLeave(ctx context.Context, left <-chan struct{}, stop func(), logger *logrus.Logger) {
	select {
	case <-left:
		logger.Info("session left the match, shutting down")
		stop()
	case <-ctx.Done():
	}
}
