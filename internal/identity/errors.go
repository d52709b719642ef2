package identity

import "errors"

var (
	ErrInvalidInput       = errors.New("identity: invalid input")
	ErrUsernameTaken      = errors.New("identity: username already taken")
	ErrEmailTaken         = errors.New("identity: email already in use")
	ErrInvalidCredentials = errors.New("identity: invalid username or password")
	ErrAccountInactive    = errors.New("identity: account is deactivated")
	ErrNotFound           = errors.New("identity: account not found")
	ErrInvalidResetToken  = errors.New("identity: invalid or expired reset token")
	ErrDeliveryFailed     = errors.New("identity: could not deliver email")
)
