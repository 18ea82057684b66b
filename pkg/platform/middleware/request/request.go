// Package request provides request ID middleware. Every request gets a fresh
// ID early in the chain; all log lines and audit details reference it.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"curia/pkg/requestcontext"
)

const headerRequestID = "X-Request-Id"

// Middleware assigns a request ID, honoring one supplied by a trusted
// upstream proxy, and echoes it back in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
