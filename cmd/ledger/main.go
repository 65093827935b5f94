package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/ledger-engine/cmd/ledger/cli"
	"github.com/odyssey-erp/ledger-engine/internal/app"
	"github.com/odyssey-erp/ledger-engine/internal/platform/cache"
	"github.com/odyssey-erp/ledger-engine/internal/platform/db"
	"github.com/odyssey-erp/ledger-engine/internal/platform/lock"
	"github.com/odyssey-erp/ledger-engine/jobs"
)

const usage = `usage: ledger <command> [flags]

commands:
  serve              run the HTTP API (default)
  migrate up|down    apply or roll back schema migrations (down -steps N)
  import -file F     import draft entries from a CSV file
  jobs trigger NAME  enqueue a background job
  jobs stats         show default queue statistics`

func main() {
	if app.SkipStartup(nil, "api") {
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

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = runMigrate(ctx, cfg, logger, args)
	case "import":
		os.Exit(runImport(ctx, cfg, logger, args))
	case "jobs":
		err = runJobs(ctx, cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func openPool(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	if cfg.LedgerStore != app.StorePostgres {
		return nil, nil
	}
	return db.New(ctx, cfg.PoolOptions("api"))
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	if pool != nil {
		defer pool.Close()
		if err := db.Migrate(pool, logger); err != nil {
			return err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
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
		return err
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		LedgerHandler: engine.Handler(logger),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Gatherer:      prometheus.DefaultGatherer,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.LedgerStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("migrate: direction required (up|down)")
	}
	pool, err := db.New(ctx, cfg.PoolOptions("migrate"))
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	switch args[0] {
	case "up":
		return db.Migrate(pool, logger)
	case "down":
		fs := flag.NewFlagSet("migrate down", flag.ContinueOnError)
		steps := fs.Int("steps", 1, "number of migrations to roll back")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return db.Rollback(pool, *steps, logger)
	default:
		return fmt.Errorf("migrate: unknown direction %q", args[0])
	}
}

func runImport(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	opts := cli.ImportOptions{}
	fs.StringVar(&opts.Path, "file", "", "CSV file with entryDate,description,linesJson columns")
	fs.StringVar(&opts.Actor, "actor", "", "actor recorded as creator")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print a JSON summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 2
	}
	if pool != nil {
		defer pool.Close()
	}
	engine, err := app.BuildEngine(app.EngineParams{Config: cfg, Logger: logger, Pool: pool})
	if err != nil {
		logger.Error("build engine", slog.Any("error", err))
		return 2
	}
	return cli.ImportCommand(ctx, engine.Journals, opts)
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("jobs: subcommand required (trigger|stats|scheduled)")
	}
	jc, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jc.Close()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		year := fs.Int("year", 0, "fiscal year for budget refresh (default current)")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return errors.New("jobs trigger: job name required")
		}
		info, err := jc.Trigger(ctx, fs.Arg(0), *year)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := jc.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
	return nil
}
