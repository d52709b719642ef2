package identity_test

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/identity"
	"github.com/opencrafts-io/parley/internal/repository"
)

// memStore keeps accounts in memory and emulates the unique indexes and the
// rollback behaviour of the Postgres store.
type memStore struct {
	mu         sync.Mutex
	accounts   map[uuid.UUID]repository.Account
	outbox     []eventbus.OutboxMessage
	outboxErr  error
	versionErr error
	committed  int
	rolledBack int
}

func newMemStore() *memStore {
	return &memStore{accounts: map[uuid.UUID]repository.Account{}}
}

func (s *memStore) InTx(ctx context.Context, fn func(identity.Queries) error) error {
	s.mu.Lock()
	accounts := maps.Clone(s.accounts)
	outbox := append([]eventbus.OutboxMessage(nil), s.outbox...)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.accounts = accounts
		s.outbox = outbox
		s.rolledBack++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.committed++
	s.mu.Unlock()
	return nil
}

func (s *memStore) messages() []eventbus.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eventbus.OutboxMessage(nil), s.outbox...)
}

func (s *memStore) setTokenVersion(username string, v *int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byUsername(username)
	if ok {
		a.TokenVersion = v
		s.accounts[a.ID] = a
	}
}

func (s *memStore) byUsername(username string) (repository.Account, bool) {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, true
		}
	}
	return repository.Account{}, false
}

func (s *memStore) byEmail(email string) (repository.Account, bool) {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, true
		}
	}
	return repository.Account{}, false
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func bump(a *repository.Account) {
	v := int32(1)
	if a.TokenVersion != nil && *a.TokenVersion > 0 {
		v = *a.TokenVersion
	}
	v++
	a.TokenVersion = &v
	a.Revision++
	a.UpdatedAt = time.Now().UTC()
}

func (s *memStore) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUsername(arg.Username); ok {
		return repository.Account{}, uniqueViolation(repository.ConstraintAccountUsername)
	}
	if _, ok := s.byEmail(arg.Email); ok {
		return repository.Account{}, uniqueViolation(repository.ConstraintAccountEmail)
	}
	v := int32(1)
	now := time.Now().UTC()
	a := repository.Account{
		ID:           uuid.New(),
		Username:     arg.Username,
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
		Roles:        arg.Roles,
		Active:       true,
		TokenVersion: &v,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[a.ID] = a
	return a, nil
}

func (s *memStore) GetAccountByID(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repository.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *memStore) GetAccountByUsername(ctx context.Context, username string) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byUsername(username)
	if !ok {
		return repository.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *memStore) GetAccountByEmail(ctx context.Context, email string) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byEmail(email)
	if !ok {
		return repository.Account{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *memStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byUsername(username)
	return ok, nil
}

func (s *memStore) EmailExists(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byEmail(email)
	return ok, nil
}

func (s *memStore) update(id uuid.UUID, fn func(*repository.Account) error) (repository.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return repository.Account{}, pgx.ErrNoRows
	}
	if err := fn(&a); err != nil {
		return repository.Account{}, err
	}
	s.accounts[id] = a
	return a, nil
}

func (s *memStore) UpdateUsername(ctx context.Context, arg repository.UpdateUsernameParams) (repository.Account, error) {
	return s.update(arg.ID, func(a *repository.Account) error {
		if other, ok := s.byUsername(arg.Username); ok && other.ID != a.ID {
			return uniqueViolation(repository.ConstraintAccountUsername)
		}
		a.Username = arg.Username
		bump(a)
		return nil
	})
}

func (s *memStore) UpdateEmail(ctx context.Context, arg repository.UpdateEmailParams) (repository.Account, error) {
	return s.update(arg.ID, func(a *repository.Account) error {
		if other, ok := s.byEmail(arg.Email); ok && other.ID != a.ID {
			return uniqueViolation(repository.ConstraintAccountEmail)
		}
		a.Email = arg.Email
		bump(a)
		return nil
	})
}

func (s *memStore) UpdatePassword(ctx context.Context, arg repository.UpdatePasswordParams) (repository.Account, error) {
	return s.update(arg.ID, func(a *repository.Account) error {
		a.PasswordHash = arg.PasswordHash
		a.ResetTokenHash = nil
		a.ResetTokenExpiresAt = nil
		bump(a)
		return nil
	})
}

func (s *memStore) SetResetToken(ctx context.Context, arg repository.SetResetTokenParams) error {
	_, err := s.update(arg.ID, func(a *repository.Account) error {
		h, exp := arg.TokenHash, arg.ExpiresAt
		a.ResetTokenHash = &h
		a.ResetTokenExpiresAt = &exp
		return nil
	})
	return err
}

func (s *memStore) DeactivateAccount(ctx context.Context, id uuid.UUID) (repository.Account, error) {
	return s.update(id, func(a *repository.Account) error {
		a.Active = false
		bump(a)
		return nil
	})
}

func (s *memStore) IncrementTokenVersion(ctx context.Context, username string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byUsername(username)
	if !ok {
		return 0, pgx.ErrNoRows
	}
	v := int32(1)
	if a.TokenVersion != nil && *a.TokenVersion > 0 {
		v = *a.TokenVersion
	}
	v++
	a.TokenVersion = &v
	s.accounts[a.ID] = a
	return v, nil
}

func (s *memStore) GetTokenVersion(ctx context.Context, username string) (*int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versionErr != nil {
		return nil, s.versionErr
	}
	a, ok := s.byUsername(username)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if a.TokenVersion == nil {
		return nil, nil
	}
	v := *a.TokenVersion
	return &v, nil
}

func (s *memStore) InitTokenVersion(ctx context.Context, username string) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byUsername(username)
	if !ok || (a.TokenVersion != nil && *a.TokenVersion != 0) {
		return 0, pgx.ErrNoRows
	}
	v := int32(1)
	a.TokenVersion = &v
	s.accounts[a.ID] = a
	return v, nil
}

func (s *memStore) EnqueueOutboxMessage(ctx context.Context, msg eventbus.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outboxErr != nil {
		return s.outboxErr
	}
	s.outbox = append(s.outbox, msg)
	return nil
}
