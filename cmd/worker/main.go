package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-engine/internal/app"
	jobmetrics "github.com/odyssey-erp/ledger-engine/internal/jobs"
	"github.com/odyssey-erp/ledger-engine/internal/platform/cache"
	"github.com/odyssey-erp/ledger-engine/internal/platform/db"
	"github.com/odyssey-erp/ledger-engine/internal/platform/lock"
	"github.com/odyssey-erp/ledger-engine/jobs"
)

func main() {
	if app.SkipStartup(nil, "worker") {
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

	var pool *pgxpool.Pool
	if cfg.LedgerStore == app.StorePostgres {
		pool, err = db.New(ctx, cfg.PoolOptions("worker"))
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
	} else {
		logger.Warn("worker running against the in-memory store; generated entries are not shared with the API")
	}

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

	engine, err := app.BuildEngine(app.EngineParams{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Lock:   lock.New(redisClient, "ledger:"),
	})
	if err != nil {
		logger.Error("build engine", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	tickJob := jobs.NewRecurrenceTickJob(engine.Scheduler, logger, metrics)
	refreshJob := jobs.NewBudgetRefreshJob(engine.Budgets, logger, metrics)
	integrityJob := jobs.NewGLIntegrityJob(engine.Journals, logger, metrics)

	tickTask, err := jobs.NewRecurrenceTickTask("cron")
	if err != nil {
		logger.Error("build recurrence task", slog.Any("error", err))
		os.Exit(1)
	}
	refreshTask, err := jobs.NewBudgetRefreshTask(0)
	if err != nil {
		logger.Error("build budget refresh task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewGLIntegrityTask(0)
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRecurrenceTick, Handler: tickJob.Handle},
			{Type: jobs.TaskBudgetRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SchedulerCron, Task: tickTask, Options: []asynq.Option{asynq.Unique(cfg.SchedulerLockTTL)}},
			{Spec: cfg.BudgetRefreshCron, Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: integrityTask},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started",
		slog.String("recurrence_cron", cfg.SchedulerCron),
		slog.String("budget_refresh_cron", cfg.BudgetRefreshCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
