package token_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrafts-io/parley/internal/token"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newIssuer(c *clock) *token.Issuer {
	return token.NewIssuer(token.Options{
		Secret:   "test-secret",
		Issuer:   "https://identity.test/",
		Audience: "https://parley.test/",
		TTL:      7 * 24 * time.Hour,
		ResetTTL: 15 * time.Minute,
		Now:      c.now,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func alice(version int) token.Identity {
	return token.Identity{
		SubjectID:    "6650c0ffee",
		Username:     "alice",
		Email:        "a@x.com",
		Roles:        []string{"member", "moderator"},
		TokenVersion: version,
	}
}

func TestIssueThenValidateRoundTrips(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	signed, err := issuer.Issue(alice(1))
	require.NoError(t, err)

	claims, err := issuer.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, []string{"member", "moderator"}, claims.Roles)
	assert.Equal(t, "6650c0ffee", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	v, ok := claims.Version()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestEachTokenGetsAUniqueID(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	a, err := issuer.Issue(alice(1))
	require.NoError(t, err)
	b, err := issuer.Issue(alice(1))
	require.NoError(t, err)

	ca, err := issuer.Validate(a)
	require.NoError(t, err)
	cb, err := issuer.Validate(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestValidateRejectsExpiredTokenWithNoLeeway(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	signed, err := issuer.Issue(alice(1))
	require.NoError(t, err)

	c.t = c.t.Add(7*24*time.Hour - time.Second)
	_, err = issuer.Validate(signed)
	require.NoError(t, err)

	c.t = c.t.Add(time.Second)
	_, err = issuer.Validate(signed)
	assert.ErrorIs(t, err, token.ErrTokenExpired)
}

func TestValidateRejectsWrongSignatureIssuerAndAudience(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	sign := func(secret, iss, aud string) string {
		v := 1
		claims := &token.Claims{
			Username:     "alice",
			TokenVersion: &v,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    iss,
				Audience:  jwt.ClaimStrings{aud},
				ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
			},
		}
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}

	cases := map[string]string{
		"wrong secret":   sign("other-secret", "https://identity.test/", "https://parley.test/"),
		"wrong issuer":   sign("test-secret", "https://evil.test/", "https://parley.test/"),
		"wrong audience": sign("test-secret", "https://identity.test/", "https://evil.test/"),
		"malformed":      "not-a-token",
	}
	for name, signed := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Validate(signed)
			assert.ErrorIs(t, err, token.ErrInvalidToken)
		})
	}
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	claims := jwt.MapClaims{
		"username": "alice",
		"iss":      "https://identity.test/",
		"aud":      "https://parley.test/",
		"exp":      c.t.Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Validate(s)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestValidateWithVersionCheck(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	signed, err := issuer.Issue(alice(3))
	require.NoError(t, err)

	_, err = issuer.ValidateWithVersionCheck(signed, 3)
	require.NoError(t, err)

	for _, stored := range []int{0, 1, 2, 4, 100} {
		_, err = issuer.ValidateWithVersionCheck(signed, stored)
		assert.ErrorIs(t, err, token.ErrVersionMismatch, "stored version %d", stored)
	}
}

func TestValidateWithVersionCheckFailsClosedWithoutClaim(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	claims := &token.Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://identity.test/",
			Audience:  jwt.ClaimStrings{"https://parley.test/"},
			ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = issuer.Validate(s)
	require.NoError(t, err)

	_, err = issuer.ValidateWithVersionCheck(s, 1)
	assert.ErrorIs(t, err, token.ErrVersionMissing)
}

func TestResetTokensAreScopedAndShortLived(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	reset, err := issuer.IssueReset(alice(2))
	require.NoError(t, err)
	session, err := issuer.Issue(alice(2))
	require.NoError(t, err)

	_, err = issuer.Validate(reset)
	assert.ErrorIs(t, err, token.ErrWrongPurpose)

	_, err = issuer.ValidateReset(session, 2)
	assert.ErrorIs(t, err, token.ErrWrongPurpose)

	claims, err := issuer.ValidateReset(reset, 2)
	require.NoError(t, err)
	assert.Equal(t, token.PurposePasswordReset, claims.Purpose)

	_, err = issuer.ValidateReset(reset, 3)
	assert.ErrorIs(t, err, token.ErrVersionMismatch)

	c.t = c.t.Add(15 * time.Minute)
	_, err = issuer.ValidateReset(reset, 2)
	assert.ErrorIs(t, err, token.ErrTokenExpired)
}

func TestParseUnverifiedUsername(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	issuer := newIssuer(c)

	reset, err := issuer.IssueReset(alice(1))
	require.NoError(t, err)

	username, err := issuer.ParseUnverifiedUsername(reset)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	_, err = issuer.ParseUnverifiedUsername("garbage")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}
