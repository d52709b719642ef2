package middleware_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/opencrafts-io/parley/internal/middleware"
	"github.com/opencrafts-io/parley/internal/mocks"
	"github.com/opencrafts-io/parley/internal/token"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoUsername answers with the username the gate attached, or "anonymous".
var echoUsername = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(claims.Username))
})

func gate(t *testing.T, auth middleware.Authenticator) http.Handler {
	t.Helper()
	anonymous := middleware.Routes{"/api/auth/login", "/api/public/"}
	return middleware.RevocationGate(auth, anonymous, discard())(echoUsername)
}

func withCookie(r *http.Request, value string) *http.Request {
	r.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: value})
	return r
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body["error"]
}

func TestGateRejectsMissingCookie(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := gate(t, mocks.NewMockAuthenticator(ctrl))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, errorBody(t, rr))
}

func TestGateAnswersOutageWithServiceUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthenticator(ctrl)
	auth.EXPECT().Authenticate(gomock.Any(), "good").
		Return(nil, fmt.Errorf("identity down: %w", token.ErrUnavailable))

	rr := httptest.NewRecorder()
	gate(t, auth).ServeHTTP(rr, withCookie(httptest.NewRequest(http.MethodGet, "/api/users", nil), "good"))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Authentication is temporarily unavailable", errorBody(t, rr))
}

func TestGateRejectsRevokedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthenticator(ctrl)
	auth.EXPECT().Authenticate(gomock.Any(), "stale").Return(nil, token.ErrVersionMismatch)

	rr := httptest.NewRecorder()
	gate(t, auth).ServeHTTP(rr, withCookie(httptest.NewRequest(http.MethodGet, "/api/users", nil), "stale"))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid or expired token", errorBody(t, rr))
}

func TestGateAttachesClaims(t *testing.T) {
	ctrl := gomock.NewController(t)
	auth := mocks.NewMockAuthenticator(ctrl)
	auth.EXPECT().Authenticate(gomock.Any(), "good").Return(&token.Claims{Username: "alice"}, nil)

	rr := httptest.NewRecorder()
	gate(t, auth).ServeHTTP(rr, withCookie(httptest.NewRequest(http.MethodGet, "/api/users", nil), "good"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", rr.Body.String())
}

func TestGateSkipsAnonymousAndDocumentationRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No Authenticate calls are expected.
	h := gate(t, mocks.NewMockAuthenticator(ctrl))

	for _, path := range []string{"/api/auth/login", "/api/public/roles", "/ping", "/metrics", "/swagger/index.html"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, "anonymous", rr.Body.String(), path)
	}

	// Exact routes do not match their children.
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/auth/login/extra", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateStackRunsOutermostFirst(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := middleware.CreateStack(tag("a"), tag("b"), tag("c"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestCORS(t *testing.T) {
	h := middleware.CORSMiddleware([]string{"https://app.parley.test"})(echoUsername)

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "https://app.parley.test")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://app.parley.test", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestPagination(t *testing.T) {
	var got middleware.Pagination
	h := middleware.PaginationMiddleware(10, 50)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.GetPagination(r.Context())
	}))

	cases := map[string]middleware.Pagination{
		"/search?limit=20&offset=40": {Limit: 20, Offset: 40},
		"/search":                    {Limit: 10, Offset: 0},
		"/search?limit=500":          {Limit: 10, Offset: 0},
		"/search?limit=x&offset=-3":  {Limit: 10, Offset: 0},
	}
	for target, want := range cases {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, want, got, target)
	}
}

func TestLoggingKeepsStatus(t *testing.T) {
	h := middleware.Logging(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
