// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

// requestIDKey stores the request id in the request context.
const requestIDKey contextKey = "request_id"

// requestIDHeader is the response header carrying the request id.
const requestIDHeader = "X-Request-ID"

// RequestID returns middleware that tags every request with a unique id. An
// incoming X-Request-ID header is honoured so ids propagate through proxies;
// otherwise a fresh UUID is generated. The id is echoed on the response and
// stored in the request context for the logging middleware.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}

			w.Header().Set(requestIDHeader, id)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFrom extracts the request id from a context, or returns the empty
// string when the RequestID middleware did not run.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
