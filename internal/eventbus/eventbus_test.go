package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrafts-io/parley/internal/broker"
	"github.com/opencrafts-io/parley/internal/broker/brokertest"
	"github.com/opencrafts-io/parley/internal/eventbus"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func meta(seq int64) eventbus.EventMetadata {
	return eventbus.EventMetadata{
		EventID:    uuid.NewString(),
		SubjectID:  "subject-1",
		Sequence:   seq,
		OccurredAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:     eventbus.SourceIdentityService,
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestDecodeRoutesByKind(t *testing.T) {
	body := mustJSON(t, eventbus.UsernameChanged{
		OldUsername: "alice",
		NewUsername: "alice2",
		ChangedAt:   time.Now(),
		Meta:        meta(2),
	})

	ev, err := eventbus.Decode(eventbus.KindUsernameChanged, body)
	require.NoError(t, err)

	changed, ok := ev.(eventbus.UsernameChanged)
	require.True(t, ok)
	assert.Equal(t, "alice2", changed.NewUsername)
	assert.Equal(t, int64(2), changed.Metadata().Sequence)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	cases := map[string]struct {
		kind eventbus.Kind
		body []byte
	}{
		"not json":        {eventbus.KindRegistered, []byte("{not json")},
		"missing email":   {eventbus.KindRegistered, mustJSON(t, eventbus.Registered{SubjectID: "s", Username: "alice", Meta: meta(1)})},
		"bad email":       {eventbus.KindEmailChanged, mustJSON(t, eventbus.EmailChanged{Username: "alice", NewEmail: "nope", Meta: meta(1)})},
		"no metadata":     {eventbus.KindDeactivated, mustJSON(t, eventbus.Deactivated{Username: "alice"})},
		"same username":   {eventbus.KindUsernameChanged, mustJSON(t, eventbus.UsernameChanged{OldUsername: "a", NewUsername: "a", Meta: meta(1)})},
		"empty object":    {eventbus.KindDeactivated, []byte("{}")},
		"wrong kind json": {eventbus.KindRegistered, []byte("[]")},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := eventbus.Decode(tc.kind, tc.body)
			assert.ErrorIs(t, err, eventbus.ErrInvalidPayload)
		})
	}

	_, err := eventbus.Decode("user.unknown", []byte("{}"))
	assert.ErrorIs(t, err, eventbus.ErrUnknownKind)
}

func TestTopologyCoversEveryKind(t *testing.T) {
	top := eventbus.Topology(true)
	require.Len(t, top.Queues, 4)
	for _, k := range eventbus.Kinds() {
		assert.True(t, top.DeadLetter(k.Queue()), k)
	}
	assert.Equal(t, "user.deleted.queue", eventbus.KindDeactivated.Queue())
}

func TestPublishIsPersistentAndConfirmed(t *testing.T) {
	d := &brokertest.Dialer{}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(true), discard())
	p := eventbus.NewPublisher(m, discard())

	ev := eventbus.Deactivated{Username: "alice", Meta: meta(3)}
	require.NoError(t, p.Publish(context.Background(), eventbus.QueueDeactivated, ev, true))

	ch := d.Last().Channels[0]
	assert.True(t, ch.IsClosed(), "publish channel must be released")
	assert.True(t, ch.Confirms)
	assert.Contains(t, ch.Queues, "user.deleted.queue.dlq")

	published := ch.PublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "", published[0].Exchange)
	assert.Equal(t, eventbus.QueueDeactivated, published[0].Key)
	assert.Equal(t, amqp.Persistent, published[0].Msg.DeliveryMode)
	assert.Equal(t, ev.Meta.EventID, published[0].Msg.MessageId)
	assert.Equal(t, string(eventbus.KindDeactivated), published[0].Msg.Type)
	assert.JSONEq(t, string(mustJSON(t, ev)), string(published[0].Msg.Body))
}

func TestPublishFailureIsVisible(t *testing.T) {
	d := &brokertest.Dialer{NewChannel: func() *brokertest.Channel {
		ch := brokertest.NewChannel()
		ch.PublishErr = amqp.ErrClosed
		return ch
	}}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(false), discard())
	p := eventbus.NewPublisher(m, discard())

	err := p.Publish(context.Background(), eventbus.QueueRegistered, eventbus.Deactivated{Username: "a", Meta: meta(1)}, false)
	assert.ErrorIs(t, err, eventbus.ErrPublishFailed)
	assert.ErrorIs(t, err, amqp.ErrClosed)
}

func TestPublishFailsWhenBrokerUnreachable(t *testing.T) {
	d := &brokertest.Dialer{Err: errors.New("dial tcp: connection refused")}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(false), discard())
	p := eventbus.NewPublisher(m, discard())

	err := p.Publish(context.Background(), eventbus.QueueRegistered, map[string]string{"k": "v"}, false)
	assert.ErrorIs(t, err, eventbus.ErrPublishFailed)
}

type recordingOutbox struct {
	msgs []eventbus.OutboxMessage
	err  error
}

func (o *recordingOutbox) EnqueueOutboxMessage(ctx context.Context, msg eventbus.OutboxMessage) error {
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func TestUserEventBusWritesDecodableOutboxMessages(t *testing.T) {
	out := &recordingOutbox{}
	bus := eventbus.NewUserEventBus(out, discard())
	ctx := context.Background()
	s := eventbus.Subject{ID: "subject-1", Username: "alice2", Email: "a@x.com", Roles: []string{"member"}, Active: true, Revision: 4}

	require.NoError(t, bus.PublishUserRegistered(ctx, s, time.Now()))
	require.NoError(t, bus.PublishUsernameChanged(ctx, s, "alice"))
	require.NoError(t, bus.PublishEmailChanged(ctx, s))
	require.NoError(t, bus.PublishUserDeactivated(ctx, s))
	require.Len(t, out.msgs, 4)

	ids := map[uuid.UUID]bool{}
	for i, k := range eventbus.Kinds() {
		msg := out.msgs[i]
		assert.Equal(t, k, msg.Kind)
		assert.Equal(t, k.Queue(), msg.Queue)
		ids[msg.EventID] = true

		ev, err := eventbus.Decode(msg.Kind, msg.Payload)
		require.NoError(t, err, k)
		assert.Equal(t, int64(4), ev.Metadata().Sequence)
		assert.Equal(t, "subject-1", ev.Metadata().SubjectID)
		assert.Equal(t, msg.EventID.String(), ev.Metadata().EventID)
	}
	assert.Len(t, ids, 4)

	changed, err := eventbus.Decode(eventbus.KindUsernameChanged, out.msgs[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, "alice", changed.(eventbus.UsernameChanged).OldUsername)
	assert.Equal(t, "alice2", changed.(eventbus.UsernameChanged).NewUsername)
}

func TestUserEventBusPropagatesOutboxFailure(t *testing.T) {
	out := &recordingOutbox{err: errors.New("tx aborted")}
	bus := eventbus.NewUserEventBus(out, discard())

	err := bus.PublishUserDeactivated(context.Background(), eventbus.Subject{ID: "s", Username: "a", Revision: 1})
	assert.Error(t, err)
}

// channelSequence hands out the given channels in order, then fresh ones.
type channelSequence struct {
	mu  sync.Mutex
	chs []*brokertest.Channel
}

func (s *channelSequence) next() *brokertest.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chs) == 0 {
		return brokertest.NewChannel()
	}
	ch := s.chs[0]
	s.chs = s.chs[1:]
	return ch
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memDedup) IsDuplicate(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[id], nil
}

func (m *memDedup) Mark(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[id] = true
	return nil
}

func waitOutcome(t *testing.T, ack *brokertest.Acknowledger) {
	t.Helper()
	select {
	case <-ack.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was never settled")
	}
}

func startConsumer(t *testing.T, seq *channelSequence, handlers eventbus.Handlers, opts eventbus.ConsumerOptions) (*brokertest.Dialer, context.CancelFunc, <-chan error) {
	t.Helper()
	d := &brokertest.Dialer{NewChannel: seq.next}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(true), discard())
	c := eventbus.NewConsumer(m, eventbus.KindUsernameChanged, handlers, opts, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(cancel)
	return d, cancel, done
}

func TestConsumerAcksHandledAndNacksFailures(t *testing.T) {
	ch := brokertest.NewChannel()
	seq := &channelSequence{chs: []*brokertest.Channel{ch}}

	var mu sync.Mutex
	var applied []string
	handlers := eventbus.Handlers{
		eventbus.KindUsernameChanged: eventbus.On(func(ctx context.Context, ev eventbus.UsernameChanged) error {
			if ev.NewUsername == "taken" {
				return errors.New("username conflict")
			}
			mu.Lock()
			applied = append(applied, ev.NewUsername)
			mu.Unlock()
			return nil
		}),
	}
	_, cancel, done := startConsumer(t, seq, handlers, eventbus.ConsumerOptions{Prefetch: 1})

	ack := brokertest.NewAcknowledger()
	ch.Deliveries <- brokertest.Delivery(ack, 1, mustJSON(t, eventbus.UsernameChanged{OldUsername: "alice", NewUsername: "alice2", Meta: meta(2)}))
	waitOutcome(t, ack)
	ch.Deliveries <- brokertest.Delivery(ack, 2, []byte("garbage"))
	waitOutcome(t, ack)
	ch.Deliveries <- brokertest.Delivery(ack, 3, mustJSON(t, eventbus.UsernameChanged{OldUsername: "bob", NewUsername: "taken", Meta: meta(5)}))
	waitOutcome(t, ack)
	ch.Deliveries <- brokertest.Delivery(ack, 4, mustJSON(t, eventbus.UsernameChanged{OldUsername: "carol", NewUsername: "carol2", Meta: meta(7)}))
	waitOutcome(t, ack)

	assert.Equal(t, []string{"ack", "nack", "nack", "ack"}, ack.Outcomes())
	mu.Lock()
	assert.Equal(t, []string{"alice2", "carol2"}, applied)
	mu.Unlock()

	assert.Equal(t, 1, ch.Prefetch)
	assert.Contains(t, ch.Queues, "user.usernamechanged.queue.dlq", "consumer declares from the shared topology")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancellation")
	}
	assert.True(t, ch.IsClosed())
}

func TestConsumerNacksEventsWithoutHandler(t *testing.T) {
	ch := brokertest.NewChannel()
	seq := &channelSequence{chs: []*brokertest.Channel{ch}}
	startConsumer(t, seq, eventbus.Handlers{}, eventbus.ConsumerOptions{})

	ack := brokertest.NewAcknowledger()
	ch.Deliveries <- brokertest.Delivery(ack, 1, mustJSON(t, eventbus.UsernameChanged{OldUsername: "a", NewUsername: "b", Meta: meta(1)}))
	waitOutcome(t, ack)
	assert.Equal(t, []string{"nack"}, ack.Outcomes())
}

func TestConsumerSkipsDuplicates(t *testing.T) {
	ch := brokertest.NewChannel()
	seq := &channelSequence{chs: []*brokertest.Channel{ch}}

	calls := 0
	var mu sync.Mutex
	handlers := eventbus.Handlers{
		eventbus.KindUsernameChanged: eventbus.On(func(ctx context.Context, ev eventbus.UsernameChanged) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		}),
	}
	startConsumer(t, seq, handlers, eventbus.ConsumerOptions{Prefetch: 1, Dedup: &memDedup{seen: map[string]bool{}}})

	body := mustJSON(t, eventbus.UsernameChanged{OldUsername: "alice", NewUsername: "alice2", Meta: meta(2)})
	ack := brokertest.NewAcknowledger()
	ch.Deliveries <- brokertest.Delivery(ack, 1, body)
	waitOutcome(t, ack)
	ch.Deliveries <- brokertest.Delivery(ack, 2, body)
	waitOutcome(t, ack)

	assert.Equal(t, []string{"ack", "ack"}, ack.Outcomes())
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestConsumerResubscribesAfterChannelFailure(t *testing.T) {
	first, second := brokertest.NewChannel(), brokertest.NewChannel()
	seq := &channelSequence{chs: []*brokertest.Channel{first, second}}

	handlers := eventbus.Handlers{
		eventbus.KindUsernameChanged: eventbus.On(func(ctx context.Context, ev eventbus.UsernameChanged) error { return nil }),
	}
	startConsumer(t, seq, handlers, eventbus.ConsumerOptions{RetryDelay: 10 * time.Millisecond})

	// Wait for the first subscription before breaking it.
	require.Eventually(t, func() bool {
		return first.HasQueue(eventbus.QueueUsernameChanged)
	}, 2*time.Second, 5*time.Millisecond)
	first.Fail(&amqp.Error{Code: amqp.ChannelError, Reason: "CHANNEL_ERROR"})

	ack := brokertest.NewAcknowledger()
	second.Deliveries <- brokertest.Delivery(ack, 1, mustJSON(t, eventbus.UsernameChanged{OldUsername: "a", NewUsername: "b", Meta: meta(1)}))
	waitOutcome(t, ack)
	assert.Equal(t, []string{"ack"}, ack.Outcomes())
}

func TestConsumerRetriesUntilBrokerIsReachable(t *testing.T) {
	seq := &channelSequence{}
	d := &brokertest.Dialer{Err: errors.New("connection refused"), NewChannel: seq.next}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(false), discard())
	c := eventbus.NewConsumer(m, eventbus.KindRegistered, eventbus.Handlers{}, eventbus.ConsumerOptions{RetryDelay: 5 * time.Millisecond}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return d.DialCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestConsumerKeepsSharedConnectionWhenChannelOpenFails(t *testing.T) {
	d := &brokertest.Dialer{ChannelErr: errors.New("channel_max reached")}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(false), discard())
	c := eventbus.NewConsumer(m, eventbus.KindRegistered, eventbus.Handlers{}, eventbus.ConsumerOptions{RetryDelay: 5 * time.Millisecond}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn := d.Last()
		return conn != nil && conn.ChannelOpens() >= 4
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, d.DialCount())
	assert.False(t, d.Last().IsClosed())
}

func TestConsumerReplacesClosedChannel(t *testing.T) {
	stale, fresh := brokertest.NewChannel(), brokertest.NewChannel()
	require.NoError(t, stale.Close())
	seq := &channelSequence{chs: []*brokertest.Channel{stale, fresh}}

	d, _, _ := startConsumer(t, seq, eventbus.Handlers{}, eventbus.ConsumerOptions{RetryDelay: time.Hour})

	require.Eventually(t, func() bool {
		return fresh.HasQueue(eventbus.QueueUsernameChanged)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, d.DialCount())
	assert.False(t, stale.HasQueue(eventbus.QueueUsernameChanged))
}

func TestPublishGivesUpWhenConfirmationNeverArrives(t *testing.T) {
	d := &brokertest.Dialer{NewChannel: func() *brokertest.Channel {
		ch := brokertest.NewChannel()
		ch.NeverConfirm = true
		return ch
	}}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(false), discard())
	p := eventbus.NewPublisher(m, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, eventbus.QueueRegistered, eventbus.Deactivated{Username: "a", Meta: meta(1)}, false)
	assert.ErrorIs(t, err, eventbus.ErrPublishFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, d.Last().Channels[0].IsClosed())
}

func TestPublishReportsUnencodableEvents(t *testing.T) {
	d := &brokertest.Dialer{}
	m := broker.New("amqp://x", d.Dial, eventbus.Topology(false), discard())
	p := eventbus.NewPublisher(m, discard())

	err := p.Publish(context.Background(), eventbus.QueueRegistered, map[string]any{"f": func() {}}, false)
	assert.ErrorIs(t, err, eventbus.ErrPublishFailed)
	assert.ErrorIs(t, err, eventbus.ErrUnencodable)
	assert.Zero(t, d.DialCount())
}
