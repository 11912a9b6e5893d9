package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/golab/erplite/internal/app"
	"github.com/golab/erplite/internal/bot"
	"github.com/golab/erplite/internal/platform/cache"
	"github.com/golab/erplite/internal/platform/db"
	"github.com/golab/erplite/internal/settle"
	"github.com/golab/erplite/internal/store"
	"github.com/golab/erplite/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	// The worker reads item snapshots but never publishes change-feed entries,
	// so the store runs without a publisher here.
	itemStore := store.NewItemStore(pool, nil, logger)

	sender := bot.NewTelegramSender(cfg.TelegramToken)
	deliverJob := jobs.NewAlertDeliverJob(sender, logger, nil)

	settleService := settle.NewService(settle.NewRepository(pool), nil, logger, settle.ServiceConfig{
		DeductionRate: cfg.DeductionRate,
		FriendRate:    cfg.FriendRate,
	})
	chatBot := bot.New(itemStore, settleService, logger, cfg.AlertChatIDs)
	if cfg.TelegramToken == "" {
		logger.Info("telegram token not set, command polling disabled")
	} else {
		poller := bot.NewPoller(cfg.TelegramToken, chatBot, sender, logger)
		go func() {
			if err := poller.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("telegram poller stopped", slog.Any("error", err))
			}
		}()
	}

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
	scanJob := jobs.NewLowStockScanJob(itemStore, jobClient, cfg.AlertChatIDs, logger, nil)

	scanTask, err := jobs.NewLowStockScanTask(time.Now().UTC())
	if err != nil {
		logger.Error("build low stock scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeAlertDeliver, Handler: deliverJob.Handle},
			{Type: jobs.TaskTypeLowStockScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// 09:00 KST.
			{Spec: "0 0 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
