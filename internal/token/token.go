// Package token mints and validates the signed session tokens carried in the
// access_token cookie.
//
// Tokens are stateless HS256 JWTs. Revocation is layered on top by stamping the
// identity's token version into every token: bumping the stored version
// invalidates every token minted before the bump, without a blacklist.
package token

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken    = errors.New("token: invalid token")
	ErrTokenExpired    = errors.New("token: token has expired")
	ErrVersionMissing  = errors.New("token: token version claim missing")
	ErrVersionMismatch = errors.New("token: token version mismatch")
	ErrWrongPurpose    = errors.New("token: token not valid for this purpose")

	// ErrUnavailable means the live token version could not be read, so
	// the token was neither accepted nor rejected.
	ErrUnavailable = errors.New("token: version check unavailable")
)

type Options struct {
	Secret   string
	Issuer   string
	Audience string
	// TTL is the session token lifetime.
	TTL time.Duration
	// ResetTTL is the password reset token lifetime.
	ResetTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Issuer mints and validates tokens. Create one and share it.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	resetTTL time.Duration
	now      func() time.Time
	parser   *jwt.Parser
	logger   *slog.Logger
}

func NewIssuer(opts Options, logger *slog.Logger) *Issuer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 15 * time.Minute
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(opts.Issuer),
		jwt.WithAudience(opts.Audience),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(now),
	)

	return &Issuer{
		secret:   []byte(opts.Secret),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttl:      opts.TTL,
		resetTTL: opts.ResetTTL,
		now:      now,
		parser:   parser,
		logger:   logger,
	}
}

// Issue mints a session token for the identity.
func (i *Issuer) Issue(id Identity) (string, error) {
	return i.sign(id, PurposeSession, i.ttl)
}

// IssueReset mints a short lived token that only the password reset flow accepts.
func (i *Issuer) IssueReset(id Identity) (string, error) {
	return i.sign(id, PurposePasswordReset, i.resetTTL)
}

func (i *Issuer) sign(id Identity, purpose string, ttl time.Duration) (string, error) {
	now := i.now()
	version := id.TokenVersion
	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}

	claims := &Claims{
		Username:     id.Username,
		Email:        id.Email,
		Roles:        roles,
		TokenVersion: &version,
		Purpose:      purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.SubjectID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, issuer, audience and expiry and returns the
// claims of a session token.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	return i.validate(tokenString, PurposeSession)
}

// ValidateWithVersionCheck runs Validate and then requires the token version
// claim to equal currentVersion.
func (i *Issuer) ValidateWithVersionCheck(tokenString string, currentVersion int) (*Claims, error) {
	claims, err := i.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(claims, currentVersion); err != nil {
		i.logger.Warn("Token version check failed",
			slog.String("username", claims.Username),
			slog.Any("error", err),
		)
		return nil, err
	}
	return claims, nil
}

// ValidateReset validates a password reset token against the live token
// version, which makes the token single use once the reset bumps the version.
func (i *Issuer) ValidateReset(tokenString string, currentVersion int) (*Claims, error) {
	claims, err := i.validate(tokenString, PurposePasswordReset)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(claims, currentVersion); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseUnverifiedUsername reads the username claim of a reset token without
// trusting it, so the caller can load the live version before validating.
func (i *Issuer) ParseUnverifiedUsername(tokenString string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Username == "" {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}

func (i *Issuer) validate(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := i.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			i.logger.Info("Token expired", slog.Any("error", err))
			return nil, ErrTokenExpired
		}
		i.logger.Warn("Token validation failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}

	// Tokens minted before purposes existed carry no purpose and count as sessions.
	got := claims.Purpose
	if got == "" {
		got = PurposeSession
	}
	if got != purpose {
		return nil, ErrWrongPurpose
	}

	return claims, nil
}

func checkVersion(claims *Claims, currentVersion int) error {
	v, ok := claims.Version()
	if !ok {
		return ErrVersionMissing
	}
	if v != currentVersion {
		return ErrVersionMismatch
	}
	return nil
}

// ResetTTL is the lifetime of password reset tokens.
func (i *Issuer) ResetTTL() time.Duration {
	return i.resetTTL
}
