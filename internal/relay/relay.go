// Package relay ships committed outbox rows to Pub/Sub. Rows are locked per
// batch, so several relay replicas can drain the same table.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	"github.com/mtarikucar/kds-sub004/pkg/metrics"
	"github.com/mtarikucar/kds-sub004/pkg/outbox/registry"
	"github.com/mtarikucar/kds-sub004/pkg/pubsub"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxBackoff   = 10 * time.Second
	defaultSendTimeout  = 15 * time.Second
	defaultMaxAttempts  = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rowStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkDeadTx(tx *gorm.DB, id uuid.UUID, maxAttempts int, err error) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Sink delivers one message to a topic and returns once it is acknowledged.
type Sink interface {
	Send(ctx context.Context, topic string, msg pubsub.Message) error
}

type Params struct {
	Logger       *logger.Logger
	DB           txRunner
	Store        rowStore
	Registry     resolver
	Sink         Sink
	Metrics      *metrics.RelayMetrics
	BatchSize    int
	MaxAttempts  int
	PollInterval time.Duration
	MaxBackoff   time.Duration
	SendTimeout  time.Duration
	Now          func() time.Time
}

type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       rowStore
	registry    resolver
	sink        Sink
	metrics     *metrics.RelayMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	maxBackoff  time.Duration
	sendTimeout time.Duration
	now         func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sink == nil:
		return nil, errors.New("sink is required")
	}
	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		registry:    p.Registry,
		sink:        p.Sink,
		metrics:     p.Metrics,
		batchSize:   orDefault(p.BatchSize, defaultBatchSize),
		maxAttempts: orDefault(p.MaxAttempts, defaultMaxAttempts),
		poll:        orDefault(p.PollInterval, defaultPollInterval),
		maxBackoff:  orDefault(p.MaxBackoff, defaultMaxBackoff),
		sendTimeout: orDefault(p.SendTimeout, defaultSendTimeout),
		now:         p.Now,
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Run drains until ctx ends. A full batch is followed immediately by the
// next one, an empty poll waits the poll interval and a failed batch backs
// off exponentially up to the cap.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := r.Drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait, _ = backoff.Next()
		case handled == 0:
			backoff = r.newBackoff()
			wait = r.poll
		default:
			backoff = r.newBackoff()
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Relay) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.poll)
	b = retry.WithCappedDuration(r.maxBackoff, b)
	return retry.WithJitter(r.poll/2, b)
}

// Drain handles one locked batch and reports how many rows it touched.
// Delivery failures are recorded on the rows; only storage errors abort the
// batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, row := range rows {
			if err := r.handle(ctx, tx, row); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *Relay) handle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	})

	resolved, err := r.registry.Resolve(row)
	if err == nil {
		logCtx = r.logg.WithFields(logCtx, map[string]any{"topic": resolved.Descriptor.Topic, "event_id": resolved.Envelope.EventID})
		err = r.send(ctx, row, resolved)
	}

	switch {
	case err == nil:
		if markErr := r.store.MarkPublishedTx(tx, row.ID, r.now()); markErr != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, markErr)
		}
		r.metrics.Observe(string(row.EventType), metrics.RelayOutcomePublished)
		r.logg.Info(logCtx, "outbox event published")
		return nil

	case isPermanent(err) || row.FinalAttempt(r.maxAttempts):
		if markErr := r.store.MarkDeadTx(tx, row.ID, r.maxAttempts, err); markErr != nil {
			return fmt.Errorf("mark dead %s: %w", row.ID, markErr)
		}
		r.metrics.Observe(string(row.EventType), metrics.RelayOutcomeDead)
		r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox event abandoned")
		return nil

	default:
		if markErr := r.store.MarkFailedTx(tx, row.ID, err); markErr != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, markErr)
		}
		r.metrics.Observe(string(row.EventType), metrics.RelayOutcomeRetry)
		r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed; will retry")
		return nil
	}
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	return r.sink.Send(sendCtx, resolved.Descriptor.Topic, Message(row, resolved))
}

// Message maps a resolved row onto the wire. Events of one aggregate share an
// ordering key scoped by tenant, so a table's occupied/released pair arrives
// in commit order.
func Message(row models.OutboxEvent, resolved *registry.ResolvedEvent) pubsub.Message {
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	key := string(row.AggregateType) + ":" + row.AggregateID.String()
	if actor := resolved.Envelope.Actor; actor != nil && actor.TenantID != uuid.Nil {
		attrs["tenant_id"] = actor.TenantID.String()
		key = actor.TenantID.String() + "/" + key
	}
	return pubsub.Message{Data: row.Payload, Attributes: attrs, OrderingKey: key}
}

func isPermanent(err error) bool {
	var nonRetryable registry.NonRetryableError
	return errors.As(err, &nonRetryable)
}
