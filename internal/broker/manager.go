// Package broker owns the process wide RabbitMQ connection.
//
// A Manager is created once at startup and closed at shutdown. It hands out
// one channel per publish or subscription and declares queues from a single
// Topology, so every participant agrees on dead letter arguments.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DeadLetterExchange = "dead_letter_exchange"

	defaultHeartbeat = 10 * time.Second
)

var ErrManagerClosed = errors.New("broker: manager closed")

type Manager struct {
	uri      string
	dial     DialFunc
	topology Topology
	logger   *slog.Logger

	mu     sync.RWMutex
	conn   Connection
	closed bool
}

// New returns a Manager that dials lazily on the first GetConnection.
func New(uri string, dial DialFunc, topology Topology, logger *slog.Logger) *Manager {
	return &Manager{
		uri:      uri,
		dial:     dial,
		topology: topology,
		logger:   logger,
	}
}

// Topology returns the queue layout the manager was created with.
func (m *Manager) Topology() Topology {
	return m.topology
}

// GetConnection returns the live connection, dialing a new one when there is
// none or the current one has been closed by the broker.
func (m *Manager) GetConnection() (Connection, error) {
	m.mu.RLock()
	conn, closed := m.conn, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if conn != nil && !conn.IsClosed() {
		return conn, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have reconnected while we waited for the lock.
	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	conn, err := m.dial(m.uri)
	if err != nil {
		m.logger.Error("Failed to connect to RabbitMQ", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	m.conn = conn
	m.logger.Info("Connected to RabbitMQ")

	return conn, nil
}

// Reconnect drops the current connection. The next GetConnection dials again.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return
	}
	if !m.conn.IsClosed() {
		if err := m.conn.Close(); err != nil {
			m.logger.Warn("Failed to close stale RabbitMQ connection", slog.Any("error", err))
		}
	}
	m.conn = nil
	m.logger.Info("RabbitMQ connection reset, next use will reconnect")
}

// Channel opens a fresh channel on the live connection. The caller owns it
// and must close it.
func (m *Manager) Channel() (Channel, error) {
	conn, err := m.GetConnection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// WithChannel runs fn on a channel that is closed when fn returns.
func (m *Manager) WithChannel(fn func(Channel) error) error {
	ch, err := m.Channel()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ch.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
			m.logger.Warn("Failed to close channel", slog.Any("error", cerr))
		}
	}()

	return fn(ch)
}

// DeclareQueue declares a durable queue. With withDeadLetter it also declares
// the shared dead letter exchange and a <name>.dlq queue bound to it, and arms
// the primary queue to route rejected messages there.
//
// Declaring is idempotent on the broker side as long as the arguments match.
// A NOT_FOUND reply is logged and tolerated; every other failure is returned.
func (m *Manager) DeclareQueue(name string, ch Channel, withDeadLetter bool) error {
	var args amqp.Table

	if withDeadLetter {
		dlq := DeadLetterQueueName(name)

		err := ch.ExchangeDeclare(
			DeadLetterExchange, // name
			amqp.ExchangeDirect, // type
			true,               // durable
			false,              // auto-deleted
			false,              // internal
			false,              // no-wait
			nil,                // arguments
		)
		if err := m.declareFailure("exchange", DeadLetterExchange, err); err != nil {
			return err
		}

		_, err = ch.QueueDeclare(dlq, true, false, false, false, nil)
		if err := m.declareFailure("queue", dlq, err); err != nil {
			return err
		}

		err = ch.QueueBind(dlq, dlq, DeadLetterExchange, false, nil)
		if err := m.declareFailure("binding", dlq, err); err != nil {
			return err
		}

		args = amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchange,
			"x-dead-letter-routing-key": dlq,
		}
	}

	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	return m.declareFailure("queue", name, err)
}

func (m *Manager) declareFailure(kind, name string, err error) error {
	if err == nil {
		return nil
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
		m.logger.Warn("Declaration target not found, continuing",
			slog.String("kind", kind),
			slog.String("name", name),
			slog.Any("error", err),
		)
		return nil
	}

	m.logger.Error("Failed to declare",
		slog.String("kind", kind),
		slog.String("name", name),
		slog.Any("error", err),
	)
	return fmt.Errorf("failed to declare %s %q: %w", kind, name, err)
}

// Provision declares every queue of the topology once at startup.
func (m *Manager) Provision() error {
	return m.WithChannel(func(ch Channel) error {
		for _, q := range m.topology.Queues {
			if err := m.DeclareQueue(q.Name, ch, q.DeadLetter); err != nil {
				return err
			}
		}
		m.logger.Info("Broker topology provisioned", slog.Int("queues", len(m.topology.Queues)))
		return nil
	})
}

// Close shuts the connection down. The manager cannot be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.conn == nil || m.conn.IsClosed() {
		m.conn = nil
		return nil
	}

	err := m.conn.Close()
	m.conn = nil
	return err
}
