package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"predictions/internal/bot"
	"predictions/internal/config"
	"predictions/internal/db"
	"predictions/internal/market"
	"predictions/internal/store/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadBotFromEnv()
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

	b, err := bot.New(cfg.DiscordToken, cfg.Prefix, engine, logger)
	if err != nil {
		logger.Error("bot init failed", "err", err)
		os.Exit(1)
	}
	if err := b.Run(ctx); err != nil {
		logger.Error("bot stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("bot shutdown")
}
