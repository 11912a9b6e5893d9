package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/golab/erplite/internal/app"
	"github.com/golab/erplite/internal/ledger"
	"github.com/golab/erplite/internal/observability"
	"github.com/golab/erplite/internal/platform/cache"
	"github.com/golab/erplite/internal/platform/db"
	"github.com/golab/erplite/internal/settle"
	"github.com/golab/erplite/internal/shared"
	"github.com/golab/erplite/internal/store"
	"github.com/golab/erplite/internal/watch"
	"github.com/golab/erplite/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobsCLI(ctx, cfg.RedisAddr, os.Args[2:]); err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	idemStore := shared.NewIdempotencyStore(dbpool)
	feed := store.NewChangeFeed(redisClient, cfg.FeedChannel, logger)
	itemStore := store.NewItemStore(dbpool, feed, logger)

	ledgerService := ledger.NewService(itemStore, auditLogger, idemStore, logger, ledger.ServiceConfig{
		MaxAttempts: cfg.LedgerMaxAttempts,
		Metrics:     metrics,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	settleRepo := settle.NewRepository(dbpool)
	settleService := settle.NewService(settleRepo, auditLogger, logger, settle.ServiceConfig{
		DeductionRate: cfg.DeductionRate,
		FriendRate:    cfg.FriendRate,
	})
	settleHandler := settle.NewHandler(logger, settleService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	notifier := jobs.NewAsynqNotifier(jobClient, logger)
	watcher := watch.New(notifier, auditLogger, logger, watch.Config{
		Sinks:       cfg.AlertChatIDs,
		ReemitOnOut: cfg.ReemitOnOut,
		Metrics:     metrics,
	})
	lowItems, err := itemStore.QueryLowStock(ctx)
	if err != nil {
		logger.Warn("seed low stock watcher", slog.Any("error", err))
	}
	// Seed even with an empty snapshot so the watcher starts evaluating.
	watcher.Seed(lowItems)
	go func() {
		if err := watcher.Run(ctx, feed.Subscribe(ctx)); err != nil && err != context.Canceled {
			logger.Error("watcher stopped", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledgerHandler,
		SettlementHandler: settleHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
