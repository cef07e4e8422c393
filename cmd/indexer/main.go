package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rwx610/QuestMe-Dashboard/internal/alert"
	"github.com/rwx610/QuestMe-Dashboard/internal/analytics"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/evm"
	"github.com/rwx610/QuestMe-Dashboard/internal/chain/ton"
	"github.com/rwx610/QuestMe-Dashboard/internal/config"
	"github.com/rwx610/QuestMe-Dashboard/internal/pipeline/orchestrator"
	"github.com/rwx610/QuestMe-Dashboard/internal/server"
	"github.com/rwx610/QuestMe-Dashboard/internal/store/sqlite"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	registry, err := config.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		logger.Error("failed to load contract registry", "path", cfg.Registry.Path, "error", err)
		os.Exit(1)
	}

	logger.Info("starting indexer",
		"db_path", cfg.DB.Path,
		"base_chain_id", registry.BaseChainID,
		"tracked_contracts", len(registry.All()),
		"refresh_interval", cfg.Refresh.Interval,
		"server_port", cfg.Server.Port,
	)

	db, err := sqlite.New(sqlite.Config{
		Path:          cfg.DB.Path,
		BusyTimeoutMS: cfg.DB.BusyTimeoutMS,
	})
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	txRepo := sqlite.NewTransactionRepository(db)
	wmRepo := sqlite.NewWatermarkRepository(db)

	evmClient := evm.NewClient(cfg.Base.APIURL, cfg.Base.APIKey, cfg.Base.PageSize, cfg.Base.Timeout, logger)
	tonClient := ton.NewClient(
		cfg.TON.APIURL, cfg.TON.APIKey,
		cfg.TON.PageSize, cfg.TON.MaxPages, cfg.TON.Timeout, logger,
		ton.WithRateLimitDelay(cfg.TON.RateLimitDelay),
		ton.WithPacing(cfg.TON.PagesPerSecond),
	)

	channels := []alert.Alerter{alert.NewLogAlerter(logger)}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	alerter := alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)

	orch := orchestrator.New(
		orchestrator.Config{
			Interval:              cfg.Refresh.Interval,
			FailureAlertThreshold: cfg.Refresh.FailureAlertThreshold,
		},
		registry, evmClient, tonClient, txRepo, wmRepo, alerter, logger,
	)

	srv := server.New(cfg.Server.Port, analytics.NewService(txRepo, logger), txRepo, wmRepo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("indexer stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("indexer stopped")
}
