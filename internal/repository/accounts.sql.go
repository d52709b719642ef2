package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const accountColumns = `id, username, email, password_hash, roles, active, token_version, revision,
    reset_token_hash, reset_token_expires_at, created_at, updated_at`

// Every credential or identity change bumps the token version, treating a
// missing or zero version as 1, and the revision that orders change events.
const bumpVersions = `token_version = COALESCE(NULLIF(token_version, 0), 1) + 1,
    revision = revision + 1,
    updated_at = NOW()`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.PasswordHash,
		&i.Roles,
		&i.Active,
		&i.TokenVersion,
		&i.Revision,
		&i.ResetTokenHash,
		&i.ResetTokenExpiresAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (username, email, password_hash, roles)
VALUES ($1, $2, $3, $4)
RETURNING ` + accountColumns

type CreateAccountParams struct {
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"password_hash"`
	Roles        []string `json:"roles"`
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRow(ctx, createAccount, arg.Username, arg.Email, arg.PasswordHash, arg.Roles)
	return scanAccount(row)
}

const getAccountByID = `-- name: GetAccountByID :one
SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

func (q *Queries) GetAccountByID(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountByID, id))
}

const getAccountByUsername = `-- name: GetAccountByUsername :one
SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(username) = LOWER($1)`

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountByUsername, username))
}

const getAccountByEmail = `-- name: GetAccountByEmail :one
SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, getAccountByEmail, email))
}

const usernameExists = `-- name: UsernameExists :one
SELECT EXISTS (SELECT 1 FROM accounts WHERE LOWER(username) = LOWER($1))`

func (q *Queries) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, usernameExists, username).Scan(&exists)
	return exists, err
}

const emailExists = `-- name: EmailExists :one
SELECT EXISTS (SELECT 1 FROM accounts WHERE LOWER(email) = LOWER($1))`

func (q *Queries) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, emailExists, email).Scan(&exists)
	return exists, err
}

const updateUsername = `-- name: UpdateUsername :one
UPDATE accounts SET username = $2, ` + bumpVersions + `
WHERE id = $1
RETURNING ` + accountColumns

type UpdateUsernameParams struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

func (q *Queries) UpdateUsername(ctx context.Context, arg UpdateUsernameParams) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, updateUsername, arg.ID, arg.Username))
}

const updateEmail = `-- name: UpdateEmail :one
UPDATE accounts SET email = $2, ` + bumpVersions + `
WHERE id = $1
RETURNING ` + accountColumns

type UpdateEmailParams struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

func (q *Queries) UpdateEmail(ctx context.Context, arg UpdateEmailParams) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, updateEmail, arg.ID, arg.Email))
}

const updatePassword = `-- name: UpdatePassword :one
UPDATE accounts
SET password_hash = $2, reset_token_hash = NULL, reset_token_expires_at = NULL, ` + bumpVersions + `
WHERE id = $1
RETURNING ` + accountColumns

type UpdatePasswordParams struct {
	ID           uuid.UUID `json:"id"`
	PasswordHash string    `json:"password_hash"`
}

func (q *Queries) UpdatePassword(ctx context.Context, arg UpdatePasswordParams) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, updatePassword, arg.ID, arg.PasswordHash))
}

const setResetToken = `-- name: SetResetToken :exec
UPDATE accounts SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = NOW()
WHERE id = $1`

type SetResetTokenParams struct {
	ID        uuid.UUID `json:"id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (q *Queries) SetResetToken(ctx context.Context, arg SetResetTokenParams) error {
	_, err := q.db.Exec(ctx, setResetToken, arg.ID, arg.TokenHash, arg.ExpiresAt)
	return err
}

const deactivateAccount = `-- name: DeactivateAccount :one
UPDATE accounts SET active = FALSE, ` + bumpVersions + `
WHERE id = $1
RETURNING ` + accountColumns

func (q *Queries) DeactivateAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(q.db.QueryRow(ctx, deactivateAccount, id))
}

const incrementTokenVersion = `-- name: IncrementTokenVersion :one
UPDATE accounts
SET token_version = COALESCE(NULLIF(token_version, 0), 1) + 1, updated_at = NOW()
WHERE LOWER(username) = LOWER($1)
RETURNING token_version`

func (q *Queries) IncrementTokenVersion(ctx context.Context, username string) (int32, error) {
	var version int32
	err := q.db.QueryRow(ctx, incrementTokenVersion, username).Scan(&version)
	return version, err
}

const getTokenVersion = `-- name: GetTokenVersion :one
SELECT token_version FROM accounts WHERE LOWER(username) = LOWER($1)`

// GetTokenVersion returns the stored version, nil when it was never set.
func (q *Queries) GetTokenVersion(ctx context.Context, username string) (*int32, error) {
	var version *int32
	err := q.db.QueryRow(ctx, getTokenVersion, username).Scan(&version)
	return version, err
}

const initTokenVersion = `-- name: InitTokenVersion :one
UPDATE accounts SET token_version = 1
WHERE LOWER(username) = LOWER($1) AND COALESCE(token_version, 0) = 0
RETURNING token_version`

func (q *Queries) InitTokenVersion(ctx context.Context, username string) (int32, error) {
	var version int32
	err := q.db.QueryRow(ctx, initTokenVersion, username).Scan(&version)
	return version, err
}

const clearExpiredResetTokens = `-- name: ClearExpiredResetTokens :execrows
UPDATE accounts SET reset_token_hash = NULL, reset_token_expires_at = NULL
WHERE reset_token_expires_at IS NOT NULL AND reset_token_expires_at < $1`

func (q *Queries) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, clearExpiredResetTokens, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
