package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type paginationKey struct{}

// Pagination is the page window requested through `limit` and `offset`.
type Pagination struct {
	Limit  int
	Offset int
}

const fallbackPageSize = 10

// GetPagination returns the window parsed by PaginationMiddleware, or the
// first page of ten for routes that do not run it.
func GetPagination(ctx context.Context) Pagination {
	if p, ok := ctx.Value(paginationKey{}).(Pagination); ok {
		return p
	}
	return Pagination{Limit: fallbackPageSize}
}

// PaginationMiddleware attaches the request's page window. A limit that is
// missing, malformed or above maxLimit becomes defaultLimit, and a bad offset
// becomes 0.
func PaginationMiddleware(defaultLimit, maxLimit int) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			page := Pagination{
				Limit:  boundedInt(q.Get("limit"), 1, maxLimit, defaultLimit),
				Offset: boundedInt(q.Get("offset"), 0, -1, 0),
			}
			ctx := context.WithValue(r.Context(), paginationKey{}, page)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// boundedInt parses raw and returns fallback unless it lies in [lo, hi].
// A negative hi leaves the range open.
func boundedInt(raw string, lo, hi, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi >= 0 && n > hi) {
		return fallback
	}
	return n
}
