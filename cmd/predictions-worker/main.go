package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predictions/internal/config"
	"predictions/internal/db"
	"predictions/internal/market"
	"predictions/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
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

	engine := market.NewService(postgres.New(pool), market.Params{
		StartingBalance:  cfg.Economy.StartingBalance,
		DailyTopUp:       cfg.Economy.DailyTopUp,
		BalanceCap:       cfg.Economy.BalanceCap,
		DefaultLiquidity: cfg.Economy.DefaultLiquidity,
		Timezone:         cfg.Economy.Timezone(),
	}, logger)

	if cfg.RunOnce {
		if err := sweep(ctx, engine, logger); err != nil {
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			_ = sweep(ctx, engine, logger)
		}
	}
}

// sweep applies the daily top-up to the current cycle and closes any
// cycle whose month has ended. Both calls are idempotent, so an
// aggressive tick interval costs nothing.
func sweep(ctx context.Context, engine *market.Service, logger *slog.Logger) error {
	n, err := engine.TopUpDue(ctx, "")
	if err != nil {
		logger.Error("daily topup failed", "err", err)
		return err
	}
	if n > 0 {
		logger.Info("daily topup applied", "accounts", n)
	}

	closed, err := engine.CloseDue(ctx)
	if err != nil {
		logger.Error("cycle close failed", "err", err)
		return err
	}
	for _, key := range closed {
		logger.Info("cycle closed by worker", "cycle", key)
	}
	return nil
}
