package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gobd-ledger/internal/cron"
	"github.com/angelmondragon/gobd-ledger/internal/ledger"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/metrics"
	"github.com/angelmondragon/gobd-ledger/pkg/migrate"
	"github.com/angelmondragon/gobd-ledger/pkg/redis"
)

const serviceKind = "cron-worker"

type options struct {
	once bool
	jobs []string
}

func main() {
	var opts options
	var jobs string
	flag.BoolVar(&opts.once, "once", false, "run the selected jobs a single time and exit")
	flag.StringVar(&jobs, "jobs", "", "comma-separated job names to run (default: all)")
	flag.Parse()
	opts.jobs = splitJobs(jobs)

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Env:         cfg.App.Env,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	services, err := ledger.New(ledger.Params{
		DB:      dbClient,
		Config:  cfg.Ledger,
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("wire ledger services: %w", err)
	}

	registry, err := buildRegistry(cfg, logg, services, opts.jobs)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+envName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(registry.Jobs()),
		"once":        opts.once,
	})
	logg.Info(ctx, "starting cron worker")

	if !opts.once {
		return service.Run(ctx)
	}
	report, err := service.RunOnce(ctx)
	if err != nil {
		return err
	}
	return report.Err()
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, services *ledger.Services, only []string) (*cron.Registry, error) {
	overdue, err := cron.NewOverdueRemindersJob(cron.OverdueRemindersJobParams{
		Logger:       logg,
		Reminders:    services.Reminders,
		IntervalDays: cfg.Ledger.ReminderIntervalDay,
	})
	if err != nil {
		return nil, fmt.Errorf("overdue reminders job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: services.OutboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	registry, err := cron.NewRegistry(overdue, retention)
	if err != nil {
		return nil, err
	}
	return registry.Only(only...)
}

func splitJobs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
