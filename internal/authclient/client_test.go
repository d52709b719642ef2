package authclient_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencrafts-io/parley/internal/authclient"
	"github.com/opencrafts-io/parley/internal/token"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func identityServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, authclient.ValidatePath, r.URL.Path)

		var req authclient.ValidateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			v := 3
			json.NewEncoder(w).Encode(token.Claims{Username: req.Token, TokenVersion: &v})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid or expired token"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthenticateAccepted(t *testing.T) {
	srv := identityServer(t, http.StatusOK)
	c := authclient.New(srv.URL+"/", time.Second, discard())

	claims, err := c.Authenticate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	v, ok := claims.Version()
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestRejectionsDoNotOpenTheBreaker(t *testing.T) {
	srv := identityServer(t, http.StatusUnauthorized)
	c := authclient.New(srv.URL, time.Second, discard())

	for range 5 {
		_, err := c.Authenticate(context.Background(), "revoked")
		assert.ErrorIs(t, err, token.ErrInvalidToken)
	}
}

func TestServerErrorsOpenTheBreaker(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c := authclient.New(srv.URL, time.Second, discard())

	for range 5 {
		_, err := c.Authenticate(context.Background(), "alice")
		assert.ErrorIs(t, err, authclient.ErrUnavailable)
		assert.ErrorIs(t, err, token.ErrUnavailable)
	}
	// The breaker opens after three failures and stops calling out.
	assert.Equal(t, 3, calls)
}
