// Package auth provides bearer token middleware that resolves the caller's
// identity. Only identity and role come from the token; resource ownership
// is always re-read from the store by the guard.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"curia/pkg/domain"
	request "curia/pkg/platform/middleware/request"
	"curia/pkg/requestcontext"
)

// JWTValidator defines the interface for validating bearer tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims expected from the validator.
type JWTClaims struct {
	SubjectID string
	Role      string
	JTI       string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireCaller validates the bearer token and stores the resolved caller in
// the request context.
func RequireCaller(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := request.GetRequestID(ctx)

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			subjectID, err := domain.ParseSubjectID(claims.SubjectID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed subject claim",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}
			role := domain.Role(claims.Role)
			if !role.IsValid() {
				logger.WarnContext(ctx, "unauthorized access - unknown role claim",
					"role", claims.Role,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithCaller(ctx, domain.Caller{SubjectID: subjectID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
