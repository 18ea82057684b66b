// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// domain services and encode; business logic stays out of this package.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curia/internal/platform/metrics"
	"curia/pkg/platform/middleware/admin"
	"curia/pkg/platform/middleware/auth"
	"curia/pkg/platform/middleware/metadata"
	"curia/pkg/platform/middleware/request"
	"curia/pkg/platform/middleware/requesttime"
)

// Deps bundles everything the router needs. All handlers are required; the
// metrics middleware is skipped when Metrics is nil.
type Deps struct {
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Validator auth.JWTValidator

	Cases      *CaseHandler
	Decisions  *DecisionHandler
	Subjects   *SubjectHandler
	Pseudonyms *PseudonymHandler
	Audit      *AuditHandler
}

// NewRouter wires all endpoints behind the shared middleware chain. Every
// route except health and metrics requires an authenticated caller.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireCaller(deps.Validator, deps.Logger))

		deps.Cases.Register(r)
		deps.Decisions.Register(r)
		deps.Pseudonyms.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdministrator(deps.Logger))
			deps.Subjects.Register(r)
			deps.Audit.Register(r)
		})
	})

	return r
}
