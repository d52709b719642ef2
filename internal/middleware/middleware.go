package middleware

import "net/http"

// Middleware wraps a handler with behaviour that runs around it.
type Middleware func(http.Handler) http.Handler

// CreateStack composes xs into one Middleware. The first entry is the
// outermost, so it sees the request first.
func CreateStack(xs ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(xs) - 1; i >= 0; i-- {
			next = xs[i](next)
		}
		return next
	}
}
