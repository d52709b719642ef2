// Package authclient lets a service without access to the identity store
// authenticate session tokens by asking the identity service.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/opencrafts-io/parley/internal/circuitbreaker"
	"github.com/opencrafts-io/parley/internal/token"
)

// ValidatePath is the identity service endpoint the client calls.
const ValidatePath = "/api/auth/validate-token"

// ErrUnavailable wraps token.ErrUnavailable so the gate can tell an outage
// from a rejection.
var ErrUnavailable = fmt.Errorf("authclient: identity service unavailable: %w", token.ErrUnavailable)

// ValidateRequest is the body of a validate-token call.
type ValidateRequest struct {
	Token string `json:"token"`
}

// Client implements middleware.Authenticator against the identity service.
// Rejections are answers, not failures, and never trip the breaker.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*token.Claims]
	logger  *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New[*token.Claims]("identity-validate-token", 30*time.Second, logger),
		logger:  logger,
	}
}

// Authenticate returns the claims of a token the identity service accepts.
// A rejected token yields token.ErrInvalidToken; an unreachable or failing
// identity service yields ErrUnavailable.
func (c *Client) Authenticate(ctx context.Context, tokenString string) (*token.Claims, error) {
	var rejected bool
	claims, err := c.breaker.Execute(func() (*token.Claims, error) {
		claims, ok, err := c.validate(ctx, tokenString)
		rejected = !ok
		return claims, err
	})
	switch {
	case err != nil:
		c.logger.Error("Token validation call failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case rejected:
		return nil, token.ErrInvalidToken
	}
	return claims, nil
}

func (c *Client) validate(ctx context.Context, tokenString string) (*token.Claims, bool, error) {
	body, err := json.Marshal(ValidateRequest{Token: tokenString})
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ValidatePath, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var claims token.Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, false, fmt.Errorf("failed to decode claims: %w", err)
	}
	return &claims, true, nil
}
