// Package identity owns account records and the credentials issued for them.
// Every change that other services must learn about is written to the outbox
// in the same transaction as the change itself.
package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opencrafts-io/parley/internal/eventbus"
	"github.com/opencrafts-io/parley/internal/hash"
	"github.com/opencrafts-io/parley/internal/repository"
	"github.com/opencrafts-io/parley/internal/token"
)

// Notifier sends the account emails.
type Notifier interface {
	Welcome(ctx context.Context, to, username string) error
	UsernameReminder(ctx context.Context, to, username string) error
	PasswordReset(ctx context.Context, to, username, resetToken, expiresIn string) error
	PasswordChanged(ctx context.Context, to, username string) error
	UsernameChanged(ctx context.Context, to, oldUsername, username string) error
	EmailChanged(ctx context.Context, to, username, email string) error
	Deactivated(ctx context.Context, to, username string) error
}

// Session is a freshly issued session token and the account it belongs to.
type Session struct {
	Token   string
	Account repository.Account
}

type Service struct {
	store    Store
	tokens   *token.Issuer
	hasher   hash.Hasher
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Store, tokens *token.Issuer, hasher hash.Hasher, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	passwordHash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	var account repository.Account
	err = s.store.InTx(ctx, func(q Queries) error {
		if taken, err := q.UsernameExists(ctx, req.Username); err != nil {
			return err
		} else if taken {
			return ErrUsernameTaken
		}
		if taken, err := q.EmailExists(ctx, req.Email); err != nil {
			return err
		} else if taken {
			return ErrEmailTaken
		}

		account, err = q.CreateAccount(ctx, repository.CreateAccountParams{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: passwordHash,
			Roles:        []string{RoleMember},
		})
		if err != nil {
			return conflict(err)
		}

		return eventbus.NewUserEventBus(q, s.logger).PublishUserRegistered(ctx, subject(account), account.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Registered account",
		slog.String("username", account.Username),
		slog.String("subject_id", account.ID.String()),
	)
	s.notify("welcome", s.notifier.Welcome(ctx, account.Email, account.Username))

	return s.issue(ctx, account)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	account, err := s.store.GetAccountByUsername(ctx, req.Username)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn("Login for unknown username", slog.String("username", req.Username))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		s.logger.Warn("Invalid login attempt", slog.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}
	if !account.Active {
		return nil, ErrAccountInactive
	}

	return s.issue(ctx, account)
}

// LogoutAll revokes every token issued to username.
func (s *Service) LogoutAll(ctx context.Context, username string) error {
	version, err := s.store.IncrementTokenVersion(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	s.logger.Info("Revoked all sessions",
		slog.String("username", username),
		slog.Int("token_version", int(version)),
	)
	return nil
}

// ForgotUsername emails the username registered to the address. Unknown
// addresses succeed silently.
func (s *Service) ForgotUsername(ctx context.Context, req ForgotUsernameRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	account, ok, err := s.activeByEmail(ctx, req.Email)
	if err != nil || !ok {
		return err
	}

	if err := s.notifier.UsernameReminder(ctx, account.Email, account.Username); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	return nil
}

// ForgotPassword emails a single use reset link. Unknown addresses succeed
// silently.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	account, ok, err := s.activeByEmail(ctx, req.Email)
	if err != nil || !ok {
		return err
	}

	version, err := s.TokenVersion(ctx, account.Username)
	if err != nil {
		return err
	}

	resetToken, err := s.tokens.IssueReset(identityOf(account, version))
	if err != nil {
		return err
	}

	err = s.store.SetResetToken(ctx, repository.SetResetTokenParams{
		ID:        account.ID,
		TokenHash: hashResetToken(resetToken),
		ExpiresAt: s.now().Add(s.tokens.ResetTTL()).UTC(),
	})
	if err != nil {
		return err
	}

	expiresIn := fmt.Sprintf("%d minutes", int(s.tokens.ResetTTL().Minutes()))
	if err := s.notifier.PasswordReset(ctx, account.Email, account.Username, resetToken, expiresIn); err != nil {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.logger.Info("Issued password reset token", slog.String("username", account.Username))
	return nil
}

// ResetPassword sets a new password using a reset token. The token is checked
// against the live token version and the stored token hash, so it works once.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	username, err := s.tokens.ParseUnverifiedUsername(req.ResetToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResetToken, err)
	}

	version, err := s.TokenVersion(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	claims, err := s.tokens.ValidateReset(req.ResetToken, version)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResetToken, err)
	}

	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return fmt.Errorf("%w: bad subject", ErrInvalidResetToken)
	}
	account, err := s.store.GetAccountByID(ctx, subjectID)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrInvalidResetToken
		}
		return err
	}
	if !account.Active {
		return ErrAccountInactive
	}
	if !strings.EqualFold(account.Username, username) || !s.resetTokenMatches(account, req.ResetToken) {
		s.logger.Warn("Reset token does not match the stored one", slog.String("username", username))
		return ErrInvalidResetToken
	}

	passwordHash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	if _, err := s.store.UpdatePassword(ctx, repository.UpdatePasswordParams{
		ID:           account.ID,
		PasswordHash: passwordHash,
	}); err != nil {
		return err
	}

	s.logger.Info("Password reset", slog.String("username", username))
	s.notify("password_changed", s.notifier.PasswordChanged(ctx, account.Email, account.Username))
	return nil
}

// ChangeUsername renames the account and returns a session for the new name.
func (s *Service) ChangeUsername(ctx context.Context, username string, req ChangeUsernameRequest) (*Session, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if req.NewUsername == username {
		return nil, fmt.Errorf("%w: new username is the current username", ErrInvalidInput)
	}

	var before, after repository.Account
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		before, err = activeByUsername(ctx, q, username)
		if err != nil {
			return err
		}

		other, err := q.GetAccountByUsername(ctx, req.NewUsername)
		switch {
		case err == nil && other.ID != before.ID:
			return ErrUsernameTaken
		case err != nil && !repository.IsNotFound(err):
			return err
		}

		after, err = q.UpdateUsername(ctx, repository.UpdateUsernameParams{ID: before.ID, Username: req.NewUsername})
		if err != nil {
			return conflict(err)
		}

		return eventbus.NewUserEventBus(q, s.logger).PublishUsernameChanged(ctx, subject(after), before.Username)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Username changed",
		slog.String("old_username", before.Username),
		slog.String("new_username", after.Username),
	)
	s.notify("username_changed", s.notifier.UsernameChanged(ctx, after.Email, before.Username, after.Username))

	return s.issue(ctx, after)
}

// UpdateEmail changes the account email. The notice goes to the old address.
func (s *Service) UpdateEmail(ctx context.Context, username string, req UpdateEmailRequest) (*Session, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	var before, after repository.Account
	err := s.store.InTx(ctx, func(q Queries) error {
		var err error
		before, err = activeByUsername(ctx, q, username)
		if err != nil {
			return err
		}
		if strings.EqualFold(before.Email, req.NewEmail) {
			return fmt.Errorf("%w: new email is the current email", ErrInvalidInput)
		}

		if taken, err := q.EmailExists(ctx, req.NewEmail); err != nil {
			return err
		} else if taken {
			return ErrEmailTaken
		}

		after, err = q.UpdateEmail(ctx, repository.UpdateEmailParams{ID: before.ID, Email: req.NewEmail})
		if err != nil {
			return conflict(err)
		}

		return eventbus.NewUserEventBus(q, s.logger).PublishEmailChanged(ctx, subject(after))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Email changed", slog.String("username", after.Username))
	s.notify("email_changed", s.notifier.EmailChanged(ctx, before.Email, after.Username, after.Email))

	return s.issue(ctx, after)
}

func (s *Service) ChangePassword(ctx context.Context, username string, req ChangePasswordRequest) (*Session, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	account, err := activeByUsername(ctx, s.store, username)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(req.CurrentPassword, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	passwordHash, err := s.hashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}

	account, err = s.store.UpdatePassword(ctx, repository.UpdatePasswordParams{
		ID:           account.ID,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Password changed", slog.String("username", username))
	s.notify("password_changed", s.notifier.PasswordChanged(ctx, account.Email, account.Username))

	return s.issue(ctx, account)
}

// Deactivate soft deletes the account and revokes its tokens.
func (s *Service) Deactivate(ctx context.Context, username string) error {
	var account repository.Account
	err := s.store.InTx(ctx, func(q Queries) error {
		before, err := activeByUsername(ctx, q, username)
		if err != nil {
			return err
		}

		account, err = q.DeactivateAccount(ctx, before.ID)
		if err != nil {
			return err
		}

		return eventbus.NewUserEventBus(q, s.logger).PublishUserDeactivated(ctx, subject(account))
	})
	if err != nil {
		return err
	}

	s.logger.Info("Account deactivated", slog.String("username", username))
	s.notify("deactivated", s.notifier.Deactivated(ctx, account.Email, account.Username))
	return nil
}

// Authenticate validates a session token and checks its version against the
// live one. It is the revocation gate's check for this service and backs the
// validate-token endpoint.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("%w: username claim missing", token.ErrInvalidToken)
	}
	presented, ok := claims.Version()
	if !ok {
		return nil, token.ErrVersionMissing
	}

	current, err := s.TokenVersion(ctx, claims.Username)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: unknown user", token.ErrInvalidToken)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", token.ErrUnavailable, err)
	}
	if presented != current {
		s.logger.Warn("Rejected revoked token",
			slog.String("username", claims.Username),
			slog.Int("presented", presented),
			slog.Int("current", current),
		)
		return nil, token.ErrVersionMismatch
	}
	return claims, nil
}

// TokenVersion returns the live token version for username. A missing or
// zero version is initialized to 1.
func (s *Service) TokenVersion(ctx context.Context, username string) (int, error) {
	version, err := s.store.GetTokenVersion(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if version != nil && *version > 0 {
		return int(*version), nil
	}

	initialized, err := s.store.InitTokenVersion(ctx, username)
	if err == nil {
		return int(initialized), nil
	}
	if !repository.IsNotFound(err) {
		return 0, err
	}

	// Another request initialized it first.
	version, err = s.store.GetTokenVersion(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	if version == nil {
		return 0, ErrNotFound
	}
	return int(*version), nil
}

func (s *Service) Account(ctx context.Context, username string) (repository.Account, error) {
	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return repository.Account{}, ErrNotFound
		}
		return repository.Account{}, err
	}
	return account, nil
}

func (s *Service) issue(ctx context.Context, account repository.Account) (*Session, error) {
	version, err := s.TokenVersion(ctx, account.Username)
	if err != nil {
		return nil, err
	}
	tokenString, err := s.tokens.Issue(identityOf(account, version))
	if err != nil {
		return nil, err
	}
	return &Session{Token: tokenString, Account: account}, nil
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) hashPassword(plain string) (string, error) {
	hashed, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return "", err
	}
	return hashed, nil
}

func (s *Service) activeByEmail(ctx context.Context, email string) (repository.Account, bool, error) {
	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Info("No account for email", slog.String("email", email))
			return repository.Account{}, false, nil
		}
		return repository.Account{}, false, err
	}
	return account, account.Active, nil
}

func (s *Service) resetTokenMatches(account repository.Account, resetToken string) bool {
	if account.ResetTokenHash == nil || account.ResetTokenExpiresAt == nil {
		return false
	}
	if !s.now().Before(*account.ResetTokenExpiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*account.ResetTokenHash), []byte(hashResetToken(resetToken))) == 1
}

// notify logs a failed notification. Notifications never fail the change
// that triggered them.
func (s *Service) notify(template string, err error) {
	if err != nil {
		s.logger.Warn("Notification not delivered",
			slog.String("template", template),
			slog.Any("error", err),
		)
	}
}

func activeByUsername(ctx context.Context, q Queries, username string) (repository.Account, error) {
	account, err := q.GetAccountByUsername(ctx, username)
	if err != nil {
		if repository.IsNotFound(err) {
			return repository.Account{}, ErrNotFound
		}
		return repository.Account{}, err
	}
	if !account.Active {
		return repository.Account{}, ErrAccountInactive
	}
	return account, nil
}

func conflict(err error) error {
	switch {
	case repository.IsUniqueViolation(err, repository.ConstraintAccountUsername):
		return ErrUsernameTaken
	case repository.IsUniqueViolation(err, repository.ConstraintAccountEmail):
		return ErrEmailTaken
	}
	return err
}

// hashResetToken returns the SHA256 hash of the token as base64 string
func hashResetToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func subject(a repository.Account) eventbus.Subject {
	return eventbus.Subject{
		ID:       a.ID.String(),
		Username: a.Username,
		Email:    a.Email,
		Roles:    a.Roles,
		Active:   a.Active,
		Revision: a.Revision,
	}
}

func identityOf(a repository.Account, version int) token.Identity {
	return token.Identity{
		SubjectID:    a.ID.String(),
		Username:     a.Username,
		Email:        a.Email,
		Roles:        a.Roles,
		TokenVersion: version,
	}
}
