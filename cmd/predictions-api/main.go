package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predictions/internal/api"
	"predictions/internal/config"
	"predictions/internal/db"
	"predictions/internal/market"
	"predictions/internal/store/memory"
	"predictions/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var store market.Store
	if cfg.MemoryStore {
		logger.Warn("running on the in-memory store, state will not survive a restart")
		store = memory.New()
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Error("migrate failed", "err", err)
			os.Exit(1)
		}
		store = postgres.New(pool)
	}

	engine := market.NewService(store, economyParams(cfg.Economy), logger)
	server := api.New(cfg, logger, engine)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("predictions api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func economyParams(e config.EconomyConfig) market.Params {
	return market.Params{
		StartingBalance:  e.StartingBalance,
		DailyTopUp:       e.DailyTopUp,
		BalanceCap:       e.BalanceCap,
		DefaultLiquidity: e.DefaultLiquidity,
		Timezone:         e.Timezone(),
	}
}
