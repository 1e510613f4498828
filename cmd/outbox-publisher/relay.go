package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gobd-ledger/pkg/config"
	"github.com/angelmondragon/gobd-ledger/pkg/db/models"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
	"github.com/angelmondragon/gobd-ledger/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxPollBackoff      = 10 * time.Second
	pollJitter          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// topicPublisher is the slice of *pubsub.Publisher the relay needs.
// ResumePublish must be called after a failed ordered publish or the
// ordering key stays paused.
type topicPublisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherSource func(topic string) topicPublisher

type relayParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Broker      pinger
	Store       outboxStore
	DeadLetters deadLetterStore
	Resolver    eventResolver
	Publishers  publisherSource
}

// relay moves committed outbox rows to Pub/Sub. Rows of one aggregate are
// published in creation order: once a row fails, later rows of the same
// aggregate in the batch are deferred to the next poll.
type relay struct {
	logg        *logger.Logger
	db          txRunner
	broker      pinger
	store       outboxStore
	deadLetters deadLetterStore
	resolver    eventResolver
	publishers  publisherSource
	batchSize   int
	maxAttempts int
	backoff     pollBackoff
	now         func() time.Time
}

// batchReport counts what one drain did with the rows it claimed.
type batchReport struct {
	Claimed      int
	Published    int
	Retried      int
	Deferred     int
	DeadLettered int
}

func (b batchReport) fields() map[string]any {
	return map[string]any{
		"claimed":       b.Claimed,
		"published":     b.Published,
		"retried":       b.Retried,
		"deferred":      b.Deferred,
		"dead_lettered": b.DeadLettered,
	}
}

func newRelay(p relayParams) (*relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("pubsub client is required")
	case p.Store == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Resolver == nil:
		return nil, errors.New("event registry is required")
	case p.Publishers == nil:
		return nil, errors.New("publisher source is required")
	}

	batch := p.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	attempts := p.Config.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	interval := time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &relay{
		logg:        p.Logger,
		db:          p.DB,
		broker:      p.Broker,
		store:       p.Store,
		deadLetters: p.DeadLetters,
		resolver:    p.Resolver,
		publishers:  p.Publishers,
		batchSize:   batch,
		maxAttempts: attempts,
		backoff:     pollBackoff{base: interval, max: maxPollBackoff},
		now:         time.Now,
	}, nil
}

// Run polls until ctx is cancelled. A full, clean batch is followed by an
// immediate poll; anything else waits for the poll interval, and errors back
// off exponentially.
func (r *relay) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": r.db, "pubsub": r.broker} {
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, err := r.drain(ctx)
		if err == nil && report.Claimed > 0 {
			r.logg.Info(r.logg.WithFields(ctx, report.fields()), "outbox batch relayed")
		}

		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait = r.backoff.fail()
		case report.Claimed == r.batchSize && report.Retried == 0 && report.Deferred == 0:
			r.backoff.reset()
			continue
		default:
			wait = r.backoff.idle()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *relay) drain(ctx context.Context) (batchReport, error) {
	var report batchReport
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		report = batchReport{}
		events, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		report.Claimed = len(events)

		blocked := map[string]bool{}
		for _, event := range events {
			key := registry.OrderingKey(event)
			if blocked[key] {
				report.Deferred++
				continue
			}

			resolved, err := r.resolver.Resolve(event)
			if err != nil {
				if err := r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err); err != nil {
					return err
				}
				report.DeadLettered++
				continue
			}

			ctxEvent := r.logg.WithFields(ctx, eventFields(event, resolved))
			messageID, err := r.publish(ctx, event, resolved)
			if err == nil {
				if err := r.store.MarkPublishedTx(tx, event.ID); err != nil {
					return fmt.Errorf("mark published %s: %w", event.ID, err)
				}
				r.logg.Debug(r.logg.WithField(ctxEvent, "message_id", messageID), "outbox event published")
				report.Published++
				continue
			}

			if registry.IsPermanent(err) {
				if err := r.deadLetter(ctxEvent, tx, event, enums.OutboxDLQReasonNonRetryable, err); err != nil {
					return err
				}
				report.DeadLettered++
				continue
			}
			if event.AttemptCount+1 >= r.maxAttempts {
				if err := r.deadLetter(ctxEvent, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err)); err != nil {
					return err
				}
				report.DeadLettered++
				continue
			}

			r.logg.Warn(r.logg.WithField(ctxEvent, "error", err.Error()), "outbox publish failed, will retry")
			if err := r.store.MarkFailedTx(tx, event.ID, err); err != nil {
				return fmt.Errorf("mark failure %s: %w", event.ID, err)
			}
			blocked[key] = true
			report.Retried++
		}
		return nil
	})
	return report, err
}

func (r *relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) (string, error) {
	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return "", registry.Permanent(fmt.Errorf("no publisher for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  resolved.Attributes,
		OrderingKey: resolved.OrderingKey,
	})
	if result == nil {
		return "", registry.Permanent(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	id, err := result.Get(publishCtx)
	if err != nil {
		pub.ResumePublish(resolved.OrderingKey)
		return "", err
	}
	return id, nil
}

func (r *relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	message := cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    event.ID.String(),
		"event_type":   event.EventType,
		"error_reason": reason,
		"error":        message,
	}), "outbox event dead-lettered")

	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.store.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func eventFields(event models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	return map[string]any{
		"outbox_id":     event.ID.String(),
		"event_id":      resolved.Envelope.EventID,
		"event_type":    event.EventType,
		"ordering_key":  resolved.OrderingKey,
		"topic":         resolved.Descriptor.Topic,
		"attempt_count": event.AttemptCount,
	}
}

// pollBackoff doubles the wait after each failed batch up to max and falls
// back to base once a batch succeeds.
type pollBackoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func (b *pollBackoff) fail() time.Duration {
	if b.current < b.base {
		b.current = b.base
	}
	b.current = min(b.current*2, b.max)
	return withJitter(b.current)
}

func (b *pollBackoff) idle() time.Duration {
	b.reset()
	return withJitter(b.base)
}

func (b *pollBackoff) reset() {
	b.current = b.base
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(pollJitter)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gcpPublisher adapts *pubsub.Publisher to topicPublisher.
type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.pub.Publish(ctx, msg)
}

func (p gcpPublisher) ResumePublish(orderingKey string) {
	p.pub.ResumePublish(orderingKey)
}
