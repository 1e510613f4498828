package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/migrate"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/registry"
	"github.com/angelmondragon/gobd-ledger/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

// dlqCommand holds the operator flags that replace the relay loop with a
// one-shot dead-letter action.
type dlqCommand struct {
	list    bool
	reason  string
	limit   int
	requeue string
}

func (c dlqCommand) active() bool {
	return c.list || c.requeue != ""
}

func main() {
	var cmd dlqCommand
	flag.BoolVar(&cmd.list, "dlq-list", false, "print dead-lettered events as JSON lines and exit")
	flag.StringVar(&cmd.reason, "dlq-reason", "", "filter -dlq-list by reason (max_attempts, non_retryable)")
	flag.IntVar(&cmd.limit, "dlq-limit", 50, "maximum entries printed by -dlq-list")
	flag.StringVar(&cmd.requeue, "dlq-requeue", "", "outbox event id to put back in the relay queue")
	flag.Parse()

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
	ctx = logg.WithField(ctx, "serviceKind", serviceKind)

	if cmd.active() {
		if err := runDLQ(ctx, cfg, logg, cmd); err != nil {
			logg.Error(ctx, "dlq command failed", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	broker, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	events, err := registry.New(cfg.PubSub)
	if err != nil {
		return err
	}

	r, err := newRelay(relayParams{
		Config:      cfg.Outbox,
		Logger:      logg,
		DB:          dbClient,
		Broker:      broker,
		Store:       outbox.NewRepository(dbClient.DB()),
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Resolver:    events,
		Publishers: func(topic string) topicPublisher {
			pub := broker.Publisher(topic)
			if pub == nil {
				return nil
			}
			return gcpPublisher{pub: pub}
		},
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting outbox publisher")
	return r.Run(ctx)
}

func runDLQ(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd dlqCommand) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()
	dlq := outbox.NewDLQRepository(dbClient.DB())

	if cmd.requeue != "" {
		eventID, err := uuid.Parse(cmd.requeue)
		if err != nil {
			return fmt.Errorf("invalid -dlq-requeue id: %w", err)
		}
		if err := dlq.Requeue(ctx, eventID); err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "outbox_id", eventID.String()), "outbox event requeued")
		return nil
	}

	entries, err := dlq.List(ctx, outbox.DLQFilter{
		Reason: enums.OutboxDLQErrorReason(cmd.reason),
		Limit:  cmd.limit,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return err
		}
	}
	return nil
}
