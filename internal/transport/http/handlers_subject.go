package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"curia/internal/subject"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/httputil"
	"curia/pkg/requestcontext"
)

// SubjectService defines the personnel operations the HTTP layer needs.
type SubjectService interface {
	Provision(ctx context.Context, fullName string, role domain.Role, courtUnit string, caller domain.Caller) (*subject.Subject, error)
	Get(ctx context.Context, id domain.SubjectID) (*subject.Subject, error)
	SetStatus(ctx context.Context, id domain.SubjectID, status subject.Status, caller domain.Caller) error
}

// SubjectHandler handles personnel endpoints. The router mounts it behind the
// administrator middleware.
type SubjectHandler struct {
	logger   *slog.Logger
	subjects SubjectService
}

func NewSubjectHandler(subjects SubjectService, logger *slog.Logger) *SubjectHandler {
	return &SubjectHandler{logger: logger, subjects: subjects}
}

func (h *SubjectHandler) Register(r chi.Router) {
	r.Post("/subjects", h.handleProvision)
	r.Get("/subjects/{subjectID}", h.handleGet)
	r.Put("/subjects/{subjectID}/status", h.handleSetStatus)
}

type provisionSubjectRequest struct {
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CourtUnit string `json:"court_unit"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type subjectResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CourtUnit string    `json:"court_unit"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toSubjectResponse(s *subject.Subject) subjectResponse {
	return subjectResponse{
		ID:        s.ID.String(),
		FullName:  s.FullName,
		Role:      string(s.Role),
		CourtUnit: s.CourtUnit,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
	}
}

func (h *SubjectHandler) handleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[provisionSubjectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.subjects.Provision(ctx, req.FullName, domain.Role(req.Role), req.CourtUnit, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "subject provisioning failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toSubjectResponse(created))
}

func (h *SubjectHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject id"))
		return
	}

	found, err := h.subjects.Get(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubjectResponse(found))
}

func (h *SubjectHandler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid subject id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[setStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.subjects.SetStatus(ctx, id, subject.Status(req.Status), requestcontext.Caller(ctx)); err != nil {
		h.logger.WarnContext(ctx, "subject status change failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
