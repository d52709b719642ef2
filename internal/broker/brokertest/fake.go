// Package brokertest provides in-memory stand-ins for broker connections and
// channels.
package brokertest

import (
	"context"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/opencrafts-io/parley/internal/broker"
)

// Dialer counts dials and hands out fresh Connections.
type Dialer struct {
	mu    sync.Mutex
	Err   error
	Dials int
	Conns []*Connection
	// NewChannel configures every channel opened on dialed connections.
	NewChannel func() *Channel
	// ChannelErr is copied into every dialed connection.
	ChannelErr error
}

func (d *Dialer) Dial(uri string) (broker.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Dials++
	if d.Err != nil {
		return nil, d.Err
	}
	conn := &Connection{newChannel: d.NewChannel, ChannelErr: d.ChannelErr}
	d.Conns = append(d.Conns, conn)
	return conn, nil
}

func (d *Dialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Dials
}

func (d *Dialer) Last() *Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}

type Connection struct {
	mu         sync.Mutex
	closed     bool
	opens      int
	ChannelErr error
	Channels   []*Channel
	newChannel func() *Channel
}

func (c *Connection) Channel() (broker.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opens++
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if c.ChannelErr != nil {
		return nil, c.ChannelErr
	}
	var ch *Channel
	if c.newChannel != nil {
		ch = c.newChannel()
	} else {
		ch = NewChannel()
	}
	c.Channels = append(c.Channels, ch)
	return ch, nil
}

// ChannelOpens counts calls to Channel, failed ones included.
func (c *Connection) ChannelOpens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Drop simulates the broker closing the connection.
func (c *Connection) Drop() {
	c.Close()
}

type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

type Binding struct {
	Queue    string
	Key      string
	Exchange string
}

// Channel records declarations and publishes. Declarations are kept in maps
// keyed by name so repeated declarations collapse, the way the broker treats
// them.
type Channel struct {
	mu sync.Mutex

	Exchanges map[string]string
	Queues    map[string]amqp.Table
	Bindings  map[Binding]struct{}
	Published []Published
	Prefetch  int
	Confirms  bool

	DeclareErr error
	PublishErr error
	ConsumeErr error
	// NeverConfirm makes publishes return a confirmation the broker never
	// settles.
	NeverConfirm bool

	// Deliveries is returned from ConsumeWithContext.
	Deliveries chan amqp.Delivery

	closed   bool
	notifies []chan *amqp.Error
}

func NewChannel() *Channel {
	return &Channel{
		Exchanges:  map[string]string{},
		Queues:     map[string]amqp.Table{},
		Bindings:   map[Binding]struct{}{},
		Deliveries: make(chan amqp.Delivery, 16),
	}
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return c.DeclareErr
	}
	c.Exchanges[name] = kind
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	if prev, ok := c.Queues[name]; ok && !sameArgs(prev, args) {
		return amqp.Queue{}, &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - inequivalent arg"}
	}
	c.Queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Bindings[Binding{Queue: name, Key: key, Exchange: exchange}] = struct{}{}
	return nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prefetch = prefetchCount
	return nil
}

func (c *Channel) Confirm(noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Confirms = true
	return nil
}

// PublishWithDeferredConfirmWithContext records the message. It returns a nil
// confirmation, which is what amqp091 does for channels not in confirm mode,
// unless NeverConfirm is set.
func (c *Channel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return nil, c.PublishErr
	}
	c.Published = append(c.Published, Published{Exchange: exchange, Key: key, Msg: msg})
	if c.NeverConfirm {
		return &amqp.DeferredConfirmation{}, nil
	}
	return nil, nil
}

func (c *Channel) ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	return c.Deliveries, nil
}

func (c *Channel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(receiver)
		return receiver
	}
	c.notifies = append(c.notifies, receiver)
	return receiver
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	for _, n := range c.notifies {
		close(n)
	}
	c.notifies = nil
	return nil
}

// Fail simulates the broker closing the channel with an error.
func (c *Channel) Fail(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, n := range c.notifies {
		n <- err
		close(n)
	}
	c.notifies = nil
}

func (c *Channel) HasQueue(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.Queues[name]
	return ok
}

func (c *Channel) PublishedMessages() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.Published...)
}

func sameArgs(a, b amqp.Table) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// Acknowledger records acks and nacks of deliveries.
type Acknowledger struct {
	acks   atomic.Int64
	nacks  atomic.Int64
	mu     sync.Mutex
	Events []string
	Done   chan struct{}
}

func NewAcknowledger() *Acknowledger {
	return &Acknowledger{Done: make(chan struct{}, 64)}
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.acks.Add(1)
	a.record("ack")
	return nil
}

func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks.Add(1)
	if requeue {
		a.record("nack-requeue")
	} else {
		a.record("nack")
	}
	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	a.nacks.Add(1)
	a.record("reject")
	return nil
}

func (a *Acknowledger) Acks() int64  { return a.acks.Load() }
func (a *Acknowledger) Nacks() int64 { return a.nacks.Load() }

func (a *Acknowledger) Outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.Events...)
}

func (a *Acknowledger) record(ev string) {
	a.mu.Lock()
	a.Events = append(a.Events, ev)
	a.mu.Unlock()
	a.Done <- struct{}{}
}

// Delivery builds a delivery acknowledged through ack.
func Delivery(ack *Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		ContentType:  "application/json",
		Body:         body,
	}
}
