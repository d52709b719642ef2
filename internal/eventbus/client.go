package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/opencrafts-io/parley/internal/broker"
	"github.com/opencrafts-io/parley/internal/metrics"
)

var (
	ErrPublishFailed = errors.New("eventbus: publish failed")
	ErrNotConfirmed  = errors.New("eventbus: broker did not confirm message")

	// ErrUnencodable marks an event that can never be published, as opposed
	// to a broker that is unreachable for now.
	ErrUnencodable = errors.New("eventbus: event cannot be encoded")
)

// Broker is the part of broker.Manager used by publishers and consumers.
type Broker interface {
	Channel() (broker.Channel, error)
	WithChannel(fn func(broker.Channel) error) error
	DeclareQueue(name string, ch broker.Channel, withDeadLetter bool) error
	Reconnect()
	Topology() broker.Topology
}

// Publisher sends events to their queue through the default exchange.
type Publisher struct {
	broker Broker
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(b Broker, logger *slog.Logger) *Publisher {
	return &Publisher{broker: b, logger: logger, now: time.Now}
}

// Publish encodes event as JSON and publishes it persistently to queueName,
// waiting for the broker to confirm it. Every failure is returned wrapped in
// ErrPublishFailed.
func (p *Publisher) Publish(ctx context.Context, queueName string, event any, withDeadLetter bool) error {
	body, err := json.Marshal(event)
	if err != nil {
		return p.fail(queueName, fmt.Errorf("%w: %w", ErrUnencodable, err))
	}

	publishing := amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		Timestamp:       p.now().UTC(),
		Body:            body,
	}
	if ev, ok := event.(Event); ok {
		publishing.MessageId = ev.Metadata().EventID
		publishing.Type = string(ev.Kind())
	}

	err = p.broker.WithChannel(func(ch broker.Channel) error {
		if err := p.broker.DeclareQueue(queueName, ch, withDeadLetter); err != nil {
			return err
		}
		if err := ch.Confirm(false); err != nil {
			return fmt.Errorf("failed to enable publisher confirms: %w", err)
		}

		confirmation, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			"",        // default exchange
			queueName, // routing key
			false,     // mandatory
			false,     // immediate
			publishing,
		)
		if err != nil {
			return err
		}
		if confirmation == nil {
			return nil
		}

		acked, err := confirmation.WaitContext(ctx)
		if err != nil {
			return err
		}
		if !acked {
			return ErrNotConfirmed
		}
		return nil
	})
	if err != nil {
		return p.fail(queueName, err)
	}

	metrics.EventsPublishedTotal.WithLabelValues(queueName, "ok").Inc()
	p.logger.Info("Published event",
		slog.String("queue", queueName),
		slog.String("message_id", publishing.MessageId),
	)
	return nil
}

func (p *Publisher) fail(queueName string, err error) error {
	metrics.EventsPublishedTotal.WithLabelValues(queueName, "error").Inc()
	p.logger.Error("Failed to publish event",
		slog.String("queue", queueName),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %w", ErrPublishFailed, err)
}
