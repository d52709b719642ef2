package outbox

import (
	"context"

	"github.com/opencrafts-io/parley/internal/repository"
)

type Queries interface {
	ListDueOutboxMessages(ctx context.Context, limit int32) ([]repository.OutboxMessage, error)
	MarkOutboxMessagePublished(ctx context.Context, id int64) error
	RescheduleOutboxMessage(ctx context.Context, arg repository.RescheduleOutboxMessageParams) error
	MarkOutboxMessageFailed(ctx context.Context, arg repository.MarkOutboxMessageFailedParams) error
}

// Store hands the relay a transaction. Rows listed inside it stay locked
// until it ends.
type Store interface {
	InTx(ctx context.Context, fn func(Queries) error) error
}

type postgresStore struct {
	store *repository.Store
}

func NewPostgresStore(store *repository.Store) Store {
	return postgresStore{store: store}
}

func (s postgresStore) InTx(ctx context.Context, fn func(Queries) error) error {
	return s.store.InTx(ctx, func(q *repository.Queries) error {
		return fn(q)
	})
}
