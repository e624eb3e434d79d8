package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manpreetbhatti/inkboard/internal/api"
	"github.com/manpreetbhatti/inkboard/internal/config"
	"github.com/manpreetbhatti/inkboard/internal/db"
	"github.com/manpreetbhatti/inkboard/internal/logging"
	"github.com/manpreetbhatti/inkboard/internal/presence"
	"github.com/manpreetbhatti/inkboard/internal/retention"
	"github.com/manpreetbhatti/inkboard/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	if n, err := database.CloseOpenSessions(); err != nil {
		logger.Warn("closing stale sessions", zap.Error(err))
	} else if n > 0 {
		logger.Info("closed sessions left open by a previous run", zap.Int64("count", n))
	}

	registry, closeRegistry, err := newRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRegistry()

	hub := ws.NewHub(registry, ws.Options{
		MaxMessageSize: cfg.Server.MaxMessageBytes,
		SendBuffer:     cfg.Server.SendBuffer,
		Sessions:       database,
		Logger:         logger.Named("hub"),
	})
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	pruner := retention.New(database, retention.Config{
		Interval: cfg.Retention.Interval,
		MaxAge:   cfg.Retention.MaxAge,
	}, logger.Named("retention"))
	pruner.Start()
	defer pruner.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.New(hub, database, logger.Named("api")).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("inkboard relay starting",
		zap.String("addr", srv.Addr),
		zap.String("database", cfg.Database.Path),
		zap.String("presence", cfg.Presence.Backend),
		zap.Strings("endpoints", []string{
			"GET /ws?room={roomId}",
			"GET /health",
			"GET /api/stats",
			"GET /api/rooms",
			"GET /api/rooms/{id}",
			"GET /api/sessions",
			"GET /api/sessions/{id}",
		}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stop()
	<-hubDone
	return nil
}

func newRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (presence.Registry, func(), error) {
	if cfg.Presence.Backend != "redis" {
		return presence.NewMemoryRegistry(), func() {}, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect redis %v: %w", cfg.Redis.Addrs, err)
	}
	logger.Info("presence backed by redis", zap.Strings("addrs", cfg.Redis.Addrs))

	registry := presence.NewRedisRegistry(rdb, presence.RedisOptions{TTL: cfg.Presence.TTL})
	return registry, func() { rdb.Close() }, nil
}
