package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/opencrafts-io/parley/internal/broker"
	"github.com/opencrafts-io/parley/internal/metrics"
)

var (
	ErrChannelClosed   = errors.New("eventbus: channel closed")
	ErrNoHandler       = errors.New("eventbus: no handler for event kind")
	ErrUnexpectedEvent = errors.New("eventbus: unexpected event type")
)

const (
	defaultRetryDelay     = 5 * time.Second
	defaultPrefetch       = 8
	defaultHandlerTimeout = 30 * time.Second
)

// Handler applies one decoded event. A nil error acks the delivery; any error
// nacks it without requeue.
type Handler func(ctx context.Context, ev Event) error

// Handlers is the dispatch table from event kind to handler.
type Handlers map[Kind]Handler

// On adapts a handler for one concrete event type into a Handler.
func On[T Event](fn func(context.Context, T) error) Handler {
	return func(ctx context.Context, ev Event) error {
		t, ok := ev.(T)
		if !ok {
			return fmt.Errorf("%w: %T", ErrUnexpectedEvent, ev)
		}
		return fn(ctx, t)
	}
}

// Deduplicator remembers processed event ids.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type ConsumerOptions struct {
	// RetryDelay is the pause between setup attempts. Defaults to 5s.
	RetryDelay time.Duration
	// Prefetch bounds both unacked deliveries and concurrent handlers.
	Prefetch int
	// HandlerTimeout bounds a single delivery.
	HandlerTimeout time.Duration
	// Dedup is optional.
	Dedup Deduplicator
}

// Consumer drives one queue: connect, declare, subscribe, handle, and start
// over after a fixed delay whenever any of it fails.
type Consumer struct {
	broker   Broker
	kind     Kind
	queue    string
	handlers Handlers
	opts     ConsumerOptions
	logger   *slog.Logger
}

func NewConsumer(b Broker, kind Kind, handlers Handlers, opts ConsumerOptions, logger *slog.Logger) *Consumer {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = defaultPrefetch
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = defaultHandlerTimeout
	}
	queue := kind.Queue()

	return &Consumer{
		broker:   b,
		kind:     kind,
		queue:    queue,
		handlers: handlers,
		opts:     opts,
		logger:   logger.With(slog.String("queue", queue)),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Consumer stopped")
			return nil
		}

		metrics.ConsumerRestartsTotal.WithLabelValues(c.queue).Inc()
		c.logger.Error("Consumer interrupted, retrying",
			slog.Any("error", err),
			slog.Duration("retry_in", c.opts.RetryDelay),
		)

		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped")
			return nil
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	dl := c.broker.Topology().DeadLetter(c.queue)
	if err := c.broker.DeclareQueue(c.queue, ch, dl); err != nil {
		return err
	}
	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	deliveries, err := ch.ConsumeWithContext(
		ctx,
		c.queue,
		"",    // consumer tag, generated by the broker
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Consumer subscribed", slog.Bool("dead_letter", dl))

	var workers errgroup.Group
	workers.SetLimit(c.opts.Prefetch)
	defer workers.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("%w: %w", ErrChannelClosed, amqpErr)
			}
			return ErrChannelClosed
		case d, ok := <-deliveries:
			if !ok {
				return ErrChannelClosed
			}
			workers.Go(func() error {
				c.handle(ctx, d)
				return nil
			})
		}
	}
}

// openChannel checks out a channel, trying once more when the first is
// unusable. The connection is shared with every other consumer and publisher,
// so it is only reset when it is itself closed.
func (c *Consumer) openChannel() (broker.Channel, error) {
	for attempt := 0; ; attempt++ {
		ch, err := c.broker.Channel()
		if err == nil && !ch.IsClosed() {
			return ch, nil
		}
		if ch != nil {
			_ = ch.Close()
		}
		if err == nil {
			err = ErrChannelClosed
		}
		if attempt > 0 {
			return nil, err
		}
		if errors.Is(err, amqp.ErrClosed) {
			c.broker.Reconnect()
		}
	}
}

// handle settles exactly one delivery. Handling outlives cancellation of the
// consumer so a shutdown never nacks a message that was being applied.
func (c *Consumer) handle(parent context.Context, d amqp.Delivery) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.opts.HandlerTimeout)
	defer cancel()

	logger := c.logger.With(
		slog.Uint64("delivery_tag", d.DeliveryTag),
		slog.String("message_id", d.MessageId),
	)
	defer func() {
		metrics.EventHandlingDuration.WithLabelValues(c.queue).Observe(time.Since(start).Seconds())
	}()

	ev, err := Decode(c.kind, d.Body)
	if err != nil {
		c.reject(d, logger, err)
		return
	}

	meta := ev.Metadata()
	logger = logger.With(
		slog.String("event_id", meta.EventID),
		slog.String("subject_id", meta.SubjectID),
		slog.Int64("sequence", meta.Sequence),
	)

	if c.opts.Dedup != nil {
		dup, err := c.opts.Dedup.IsDuplicate(ctx, meta.EventID)
		switch {
		case err != nil:
			logger.Warn("Dedup check failed, processing anyway", slog.Any("error", err))
		case dup:
			metrics.EventsDedupTotal.WithLabelValues("hit").Inc()
			logger.Info("Duplicate event skipped")
			c.ack(d, logger)
			return
		default:
			metrics.EventsDedupTotal.WithLabelValues("miss").Inc()
		}
	}

	handler, ok := c.handlers[ev.Kind()]
	if !ok {
		c.reject(d, logger, fmt.Errorf("%w: %s", ErrNoHandler, ev.Kind()))
		return
	}

	if err := handler(ctx, ev); err != nil {
		c.reject(d, logger, err)
		return
	}

	if c.opts.Dedup != nil {
		if err := c.opts.Dedup.Mark(ctx, meta.EventID); err != nil {
			logger.Warn("Failed to record processed event", slog.Any("error", err))
		}
	}
	c.ack(d, logger)
}

func (c *Consumer) ack(d amqp.Delivery, logger *slog.Logger) {
	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack delivery", slog.Any("error", err))
		return
	}
	metrics.EventsConsumedTotal.WithLabelValues(c.queue, "ack").Inc()
}

func (c *Consumer) reject(d amqp.Delivery, logger *slog.Logger, cause error) {
	logger.Error("Failed to process event, rejecting", slog.Any("error", cause))
	if err := d.Nack(false, false); err != nil {
		logger.Error("Failed to nack delivery", slog.Any("error", err))
		return
	}
	metrics.EventsConsumedTotal.WithLabelValues(c.queue, "nack").Inc()
}
