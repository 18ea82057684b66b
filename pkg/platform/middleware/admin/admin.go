// Package admin restricts routes to administrator callers. It runs after the
// auth middleware, which resolved the caller from the bearer token.
package admin

import (
	"log/slog"
	"net/http"

	"curia/pkg/domain"
	request "curia/pkg/platform/middleware/request"
	"curia/pkg/requestcontext"
)

// RequireAdministrator rejects callers whose resolved role is not
// administrator.
func RequireAdministrator(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Caller(ctx)
			if caller.Role != domain.RoleAdministrator {
				logger.WarnContext(ctx, "administrator route denied",
					"caller_id", caller.SubjectID,
					"caller_role", caller.Role,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"Administrator role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
