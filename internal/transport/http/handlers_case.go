package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"curia/internal/casefile"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/httputil"
	"curia/pkg/requestcontext"
)

// CaseService defines the case operations the HTTP layer needs.
type CaseService interface {
	Register(ctx context.Context, judgeID domain.SubjectID, courtUnit, subjectMatter string, caller domain.Caller) (*casefile.Case, error)
	Get(ctx context.Context, id domain.CaseID, caller domain.Caller) (*casefile.Case, error)
	Reassign(ctx context.Context, id domain.CaseID, newJudgeID domain.SubjectID, caller domain.Caller) (*casefile.Case, error)
	Timeline(ctx context.Context, id domain.CaseID, caller domain.Caller) ([]casefile.TimelineEntry, error)
}

// CaseHandler handles case file endpoints.
type CaseHandler struct {
	logger *slog.Logger
	cases  CaseService
}

func NewCaseHandler(cases CaseService, logger *slog.Logger) *CaseHandler {
	return &CaseHandler{logger: logger, cases: cases}
}

func (h *CaseHandler) Register(r chi.Router) {
	r.Post("/cases", h.handleRegister)
	r.Get("/cases/{caseID}", h.handleGet)
	r.Post("/cases/{caseID}/reassign", h.handleReassign)
	r.Get("/cases/{caseID}/timeline", h.handleTimeline)
}

type registerCaseRequest struct {
	AssignedJudgeID string `json:"assigned_judge_id"`
	CourtUnit       string `json:"court_unit"`
	SubjectMatter   string `json:"subject_matter"`
}

type reassignCaseRequest struct {
	NewJudgeID string `json:"new_judge_id"`
}

// caseResponse exposes the assigned judge only through their pseudonym. The
// real judge identity never leaves the service boundary.
type caseResponse struct {
	ID             string    `json:"id"`
	JudgePseudonym string    `json:"judge_pseudonym"`
	State          string    `json:"state"`
	CourtUnit      string    `json:"court_unit"`
	SubjectMatter  string    `json:"subject_matter"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type timelineEntryResponse struct {
	OccurredAt  time.Time `json:"occurred_at"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	DecisionID  string    `json:"decision_id,omitempty"`
}

func toCaseResponse(c *casefile.Case) caseResponse {
	return caseResponse{
		ID:             c.ID.String(),
		JudgePseudonym: c.AssignedJudgePseudonym,
		State:          string(c.State),
		CourtUnit:      c.CourtUnit,
		SubjectMatter:  c.SubjectMatter,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (h *CaseHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[registerCaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	judgeID, err := domain.ParseSubjectID(req.AssignedJudgeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "assigned_judge_id is not a valid id"))
		return
	}

	created, err := h.cases.Register(ctx, judgeID, req.CourtUnit, req.SubjectMatter, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "case registration failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCaseResponse(created))
}

func (h *CaseHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}

	found, err := h.cases.Get(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(found))
}

func (h *CaseHandler) handleReassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[reassignCaseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	judgeID, err := domain.ParseSubjectID(req.NewJudgeID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "new_judge_id is not a valid id"))
		return
	}

	updated, err := h.cases.Reassign(ctx, id, judgeID, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "case reassignment failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(updated))
}

func (h *CaseHandler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}

	entries, err := h.cases.Timeline(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]timelineEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := timelineEntryResponse{
			OccurredAt:  e.OccurredAt,
			Kind:        e.Kind,
			Description: e.Description,
		}
		if e.DecisionID != nil {
			resp.DecisionID = e.DecisionID.String()
		}
		out = append(out, resp)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
