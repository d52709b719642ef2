package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token purposes. A session token is the only kind the revocation gate accepts.
const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"
)

// Claims structure for JWT
type Claims struct {
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	TokenVersion *int     `json:"token_version,omitempty"`
	Purpose      string   `json:"purpose"`
	jwt.RegisteredClaims
}

// Identity is the subset of an identity record that is stamped into a token.
type Identity struct {
	SubjectID    string
	Username     string
	Email        string
	Roles        []string
	TokenVersion int
}

// Version returns the token version claim and whether it was present.
func (c *Claims) Version() (int, bool) {
	if c.TokenVersion == nil {
		return 0, false
	}
	return *c.TokenVersion, true
}
