package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/repository"
)

// Queries is the slice of the identity store the service uses.
type Queries interface {
	CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (repository.Account, error)
	GetAccountByID(ctx context.Context, id uuid.UUID) (repository.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (repository.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (repository.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateUsername(ctx context.Context, arg repository.UpdateUsernameParams) (repository.Account, error)
	UpdateEmail(ctx context.Context, arg repository.UpdateEmailParams) (repository.Account, error)
	UpdatePassword(ctx context.Context, arg repository.UpdatePasswordParams) (repository.Account, error)
	SetResetToken(ctx context.Context, arg repository.SetResetTokenParams) error
	DeactivateAccount(ctx context.Context, id uuid.UUID) (repository.Account, error)
	IncrementTokenVersion(ctx context.Context, username string) (int32, error)
	GetTokenVersion(ctx context.Context, username string) (*int32, error)
	InitTokenVersion(ctx context.Context, username string) (int32, error)
	eventbus.OutboxWriter
}

// Store runs Queries directly or inside a transaction.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(Queries) error) error
}

type postgresStore struct {
	*repository.Store
}

// NewPostgresStore adapts the repository store to Store.
func NewPostgresStore(store *repository.Store) Store {
	return postgresStore{Store: store}
}

func (s postgresStore) InTx(ctx context.Context, fn func(Queries) error) error {
	return s.Store.InTx(ctx, func(q *repository.Queries) error {
		return fn(q)
	})
}
