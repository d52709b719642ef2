// Package outbox publishes the events the identity service stored alongside
// its changes.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/metrics"
	"github.com/opencrafts-io/parley/internal/repository"
)

//go:generate mockgen -destination=../mocks/mock_publisher.go -package=mocks github.com/opencrafts-io/parley/internal/outbox Publisher

// Publisher is satisfied by *eventbus.Publisher.
type Publisher interface {
	Publish(ctx context.Context, queueName string, event any, withDeadLetter bool) error
}

type Options struct {
	PollInterval time.Duration
	BatchSize    int

	// MaxAttempts is how many times the broker may refuse a message before
	// the row is marked failed. An unreachable broker never uses them up.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// PublishTimeout bounds one publish including its confirmation.
	PublishTimeout time.Duration
	DeadLetter     bool
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 10 * time.Second
	}
}

type Relay struct {
	store     Store
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

func NewRelay(store Store, publisher Publisher, opts Options, logger *slog.Logger) *Relay {
	opts.defaults()
	return &Relay{
		store:     store,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With(slog.String("component", "outbox_relay")),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Outbox relay started", slog.Duration("poll_interval", r.opts.PollInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return nil
		case <-timer.C:
		}

		n, err := r.RelayOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("Outbox relay pass failed", slog.Any("error", err))
		}

		next := r.opts.PollInterval
		if err == nil && n == r.opts.BatchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// RelayOnce publishes one batch of due messages and returns how many rows it
// handled. The batch ends early at the first publish the broker could not
// take, leaving the remaining rows for a later pass.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var handled int
	err := r.store.InTx(ctx, func(q Queries) error {
		msgs, err := q.ListDueOutboxMessages(ctx, int32(r.opts.BatchSize))
		if err != nil {
			return fmt.Errorf("list due outbox messages: %w", err)
		}

		for _, msg := range msgs {
			stop, err := r.relay(ctx, q, msg)
			if err != nil {
				return err
			}
			handled++
			if stop {
				break
			}
		}
		return nil
	})
	return handled, err
}

// relay settles one row. stop reports that the broker is unavailable and the
// rest of the batch should wait.
func (r *Relay) relay(ctx context.Context, q Queries, msg repository.OutboxMessage) (stop bool, err error) {
	logger := r.logger.With(
		slog.Int64("outbox_id", msg.ID),
		slog.String("event_id", msg.EventID.String()),
		slog.String("queue", msg.Queue),
	)

	ev, err := eventbus.Decode(eventbus.Kind(msg.Kind), msg.Payload)
	if err != nil {
		logger.Error("Outbox message is not a valid event", slog.Any("error", err))
		return false, r.fail(ctx, q, msg, err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
	pubErr := r.publisher.Publish(pubCtx, msg.Queue, ev, r.opts.DeadLetter)
	cancel()
	if pubErr == nil {
		metrics.OutboxRelayedTotal.WithLabelValues("published").Inc()
		return false, q.MarkOutboxMessagePublished(ctx, msg.ID)
	}
	if ctx.Err() != nil {
		return true, ctx.Err()
	}

	attempts := int(msg.Attempts) + 1
	switch {
	case errors.Is(pubErr, eventbus.ErrUnencodable):
		logger.Error("Outbox message cannot be encoded", slog.Any("error", pubErr))
		return false, r.fail(ctx, q, msg, pubErr)

	case errors.Is(pubErr, eventbus.ErrNotConfirmed):
		if attempts >= r.opts.MaxAttempts {
			logger.Error("Outbox message refused by the broker too often",
				slog.Int("attempts", attempts),
				slog.Any("error", pubErr),
			)
			return false, r.fail(ctx, q, msg, pubErr)
		}
		return false, r.reschedule(ctx, q, msg, attempts, pubErr, logger)
	}

	// Anything else means the broker could not be reached or did not answer
	// in time. The row waits for it however long that takes.
	return true, r.reschedule(ctx, q, msg, attempts, pubErr, logger)
}

func (r *Relay) reschedule(ctx context.Context, q Queries, msg repository.OutboxMessage, attempts int, cause error, logger *slog.Logger) error {
	delay := r.backoff(attempts)
	logger.Warn("Outbox publish failed, rescheduling",
		slog.Int("attempts", attempts),
		slog.Duration("retry_in", delay),
		slog.Any("error", cause),
	)
	metrics.OutboxRelayedTotal.WithLabelValues("retry").Inc()
	return q.RescheduleOutboxMessage(ctx, repository.RescheduleOutboxMessageParams{
		ID:            msg.ID,
		LastError:     cause.Error(),
		NextAttemptAt: r.now().Add(delay).UTC(),
	})
}

func (r *Relay) fail(ctx context.Context, q Queries, msg repository.OutboxMessage, cause error) error {
	metrics.OutboxRelayedTotal.WithLabelValues("failed").Inc()
	return q.MarkOutboxMessageFailed(ctx, repository.MarkOutboxMessageFailedParams{
		ID:        msg.ID,
		LastError: cause.Error(),
	})
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (r *Relay) backoff(attempts int) time.Duration {
	delay := r.opts.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= r.opts.MaxBackoff {
			return r.opts.MaxBackoff
		}
	}
	return delay
}
