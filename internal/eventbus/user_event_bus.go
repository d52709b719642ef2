// Copyright (c) 2025 Open Crafts Interactive Limited. All Rights Reserved.
// Author: erick.muuo@opencrafts.io
//
// Documentation for the user eventbus
//
// OVERVIEW:
// The UserEventBus is the identity service's typed entry point for identity
// change events. It never talks to the broker. Every event is written to the
// transactional outbox through the same database transaction that changed the
// identity record, so an event exists if and only if its change committed. The
// outbox relay publishes it afterwards.
//
// QUEUES:
// Each event kind travels on its own durable queue on the default exchange:
// - user.registered.queue
// - user.usernamechanged.queue
// - user.emailchanged.queue
// - user.deleted.queue
// Queues are optionally paired with a <name>.dlq dead letter queue, declared
// once from the shared topology.
//
// METADATA:
// Every event carries an event id (for consumer side deduplication), the
// subject id, and a sequence equal to the identity record's revision after the
// change. Consumers apply an event only if its sequence is newer than what
// they last applied for that subject.
//
// MESSAGE DELIVERY:
// Delivery is at least once. A message may be published more than once if
// the relay crashes between publishing and marking the row as sent.

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is an encoded event waiting to be published.
type OutboxMessage struct {
	EventID uuid.UUID
	Kind    Kind
	Queue   string
	Payload []byte
}

// OutboxWriter stores messages in the caller's transaction.
type OutboxWriter interface {
	EnqueueOutboxMessage(ctx context.Context, msg OutboxMessage) error
}

// Subject is the identity state an event is built from.
type Subject struct {
	ID       string
	Username string
	Email    string
	Roles    []string
	Active   bool
	Revision int64
}

// UserEventBus provides a type-safe API for identity change events.
type UserEventBus struct {
	outbox OutboxWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewUserEventBus binds the bus to an outbox writer, normally the queries of
// an open transaction.
func NewUserEventBus(outbox OutboxWriter, logger *slog.Logger) *UserEventBus {
	return &UserEventBus{outbox: outbox, logger: logger, now: time.Now}
}

func (b *UserEventBus) metadata(s Subject) EventMetadata {
	return EventMetadata{
		EventID:    uuid.NewString(),
		SubjectID:  s.ID,
		Sequence:   s.Revision,
		OccurredAt: b.now().UTC(),
		Source:     SourceIdentityService,
	}
}

// PublishUserRegistered enqueues a Registered event for s.
func (b *UserEventBus) PublishUserRegistered(ctx context.Context, s Subject, createdAt time.Time) error {
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	return b.enqueue(ctx, Registered{
		SubjectID: s.ID,
		Username:  s.Username,
		Email:     s.Email,
		Roles:     roles,
		Active:    s.Active,
		CreatedAt: createdAt.UTC(),
		Meta:      b.metadata(s),
	})
}

// PublishUsernameChanged enqueues a UsernameChanged event. s carries the new username.
func (b *UserEventBus) PublishUsernameChanged(ctx context.Context, s Subject, oldUsername string) error {
	return b.enqueue(ctx, UsernameChanged{
		OldUsername: oldUsername,
		NewUsername: s.Username,
		ChangedAt:   b.now().UTC(),
		Meta:        b.metadata(s),
	})
}

// PublishEmailChanged enqueues an EmailChanged event. s carries the new email.
func (b *UserEventBus) PublishEmailChanged(ctx context.Context, s Subject) error {
	return b.enqueue(ctx, EmailChanged{
		Username:  s.Username,
		NewEmail:  s.Email,
		UpdatedAt: b.now().UTC(),
		Meta:      b.metadata(s),
	})
}

// PublishUserDeactivated enqueues a Deactivated event.
func (b *UserEventBus) PublishUserDeactivated(ctx context.Context, s Subject) error {
	return b.enqueue(ctx, Deactivated{
		Username: s.Username,
		Meta:     b.metadata(s),
	})
}

func (b *UserEventBus) enqueue(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	meta := ev.Metadata()
	eventID, err := uuid.Parse(meta.EventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %w", err)
	}

	msg := OutboxMessage{
		EventID: eventID,
		Kind:    ev.Kind(),
		Queue:   ev.Kind().Queue(),
		Payload: payload,
	}
	if err := b.outbox.EnqueueOutboxMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue %s event: %w", ev.Kind(), err)
	}

	b.logger.Info("Enqueued identity event",
		slog.String("kind", string(ev.Kind())),
		slog.String("event_id", meta.EventID),
		slog.String("subject_id", meta.SubjectID),
		slog.Int64("sequence", meta.Sequence),
	)
	return nil
}
