package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencrafts-io/parley/internal/metrics"
	"github.com/opencrafts-io/parley/internal/token"
)

// AccessTokenCookie carries the session token on every authenticated request.
const AccessTokenCookie = "access_token"

type claimsKey struct{}

//go:generate mockgen -destination=../mocks/mock_authenticator.go -package=mocks github.com/opencrafts-io/parley/internal/middleware Authenticator

// Authenticator checks a session token against the live token version of its
// user. An error wrapping token.ErrUnavailable means the check itself could
// not be made.
type Authenticator interface {
	Authenticate(ctx context.Context, tokenString string) (*token.Claims, error)
}

// ClaimsFromContext returns the claims the gate attached to the request.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*token.Claims)
	return claims, ok && claims != nil
}

// WithClaims attaches claims to ctx the way the gate does.
func WithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// Routes is a set of paths the gate lets through unauthenticated. A path
// ending in "/" matches everything below it.
type Routes []string

func (r Routes) match(path string) bool {
	for _, p := range r {
		if p == path {
			return true
		}
		if strings.HasSuffix(p, "/") && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// DocumentationRoutes are skipped by every gate.
var DocumentationRoutes = Routes{"/ping", "/metrics", "/swagger/"}

// RevocationGate rejects requests whose access_token cookie is missing,
// invalid or carries a token version other than the user's current one.
func RevocationGate(auth Authenticator, anonymous Routes, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if anonymous.match(r.URL.Path) || DocumentationRoutes.match(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(AccessTokenCookie)
			if err != nil || cookie.Value == "" {
				metrics.GateRejectionsTotal.WithLabelValues("missing_token").Inc()
				logger.Warn("Access token missing", slog.String("path", r.URL.Path))
				unauthorized(w, "Please provide your access token")
				return
			}

			claims, err := auth.Authenticate(r.Context(), cookie.Value)
			if errors.Is(err, token.ErrUnavailable) {
				metrics.GateRejectionsTotal.WithLabelValues("unavailable").Inc()
				logger.Error("Access token could not be checked",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				writeGateError(w, http.StatusServiceUnavailable, "Authentication is temporarily unavailable")
				return
			}
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, token.ErrVersionMismatch) {
					reason = "revoked_token"
				}
				metrics.GateRejectionsTotal.WithLabelValues(reason).Inc()
				logger.Warn("Access token rejected",
					slog.String("path", r.URL.Path),
					slog.String("reason", reason),
					slog.Any("error", err),
				)
				unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeGateError(w, http.StatusUnauthorized, msg)
}

func writeGateError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
