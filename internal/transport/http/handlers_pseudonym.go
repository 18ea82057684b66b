package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/httputil"
	"curia/pkg/requestcontext"
)

// PseudonymService defines the directory operations the HTTP layer needs.
type PseudonymService interface {
	Resolve(ctx context.Context, subjectID domain.SubjectID) (string, error)
	Unmask(ctx context.Context, code string) (domain.SubjectID, error)
}

// PseudonymHandler handles pseudonym directory endpoints. Resolution is open
// to any authenticated caller; unmasking a code back to a real identity is
// restricted to administrators here rather than in the router so the audit
// trail and the check live together.
type PseudonymHandler struct {
	logger     *slog.Logger
	pseudonyms PseudonymService
}

func NewPseudonymHandler(pseudonyms PseudonymService, logger *slog.Logger) *PseudonymHandler {
	return &PseudonymHandler{logger: logger, pseudonyms: pseudonyms}
}

func (h *PseudonymHandler) Register(r chi.Router) {
	r.Get("/pseudonyms/subjects/{subjectID}", h.handleResolve)
	r.Get("/pseudonyms/{code}/subject", h.handleUnmask)
}

func (h *PseudonymHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject id"))
		return
	}

	code, err := h.pseudonyms.Resolve(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"pseudonym": code})
}

func (h *PseudonymHandler) handleUnmask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Caller(ctx)
	if caller.Role != domain.RoleAdministrator {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "unmasking requires administrator privileges"))
		return
	}

	subjectID, err := h.pseudonyms.Unmask(ctx, chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "pseudonym unmasked",
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", caller.SubjectID,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"subject_id": subjectID.String()})
}
