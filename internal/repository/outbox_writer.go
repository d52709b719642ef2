package repository

import (
	"context"

	"github.com/opencrafts-io/parley/internal/eventbus"
)

// EnqueueOutboxMessage stores an event for the relay. Used with WithTx it
// commits or rolls back together with the change that produced the event.
func (q *Queries) EnqueueOutboxMessage(ctx context.Context, msg eventbus.OutboxMessage) error {
	return q.InsertOutboxMessage(ctx, InsertOutboxMessageParams{
		EventID: msg.EventID,
		Kind:    string(msg.Kind),
		Queue:   msg.Queue,
		Payload: msg.Payload,
	})
}
