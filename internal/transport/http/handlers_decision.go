package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"curia/internal/decision"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/httputil"
	"curia/pkg/requestcontext"
)

// DecisionService defines the decision lifecycle operations the HTTP layer
// needs.
type DecisionService interface {
	Create(ctx context.Context, caseID domain.CaseID, decisionType decision.Type, title, body string, caller domain.Caller) (*decision.Decision, error)
	Get(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*decision.Decision, error)
	List(ctx context.Context, caseID domain.CaseID, caller domain.Caller) ([]decision.Decision, error)
	GetHistory(ctx context.Context, id domain.DecisionID, caller domain.Caller) ([]decision.HistoryEntry, error)
	Update(ctx context.Context, id domain.DecisionID, patch decision.Patch, caller domain.Caller) (*decision.Decision, error)
	PrepareForSignature(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*decision.Decision, error)
	Sign(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*decision.Decision, error)
	Delete(ctx context.Context, id domain.DecisionID, caller domain.Caller) error
	Void(ctx context.Context, id domain.DecisionID, reason string, caller domain.Caller) error
	VerifyIntegrity(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*decision.IntegrityResult, error)
}

// DecisionHandler handles decision lifecycle endpoints.
type DecisionHandler struct {
	logger    *slog.Logger
	decisions DecisionService
}

func NewDecisionHandler(decisions DecisionService, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{logger: logger, decisions: decisions}
}

func (h *DecisionHandler) Register(r chi.Router) {
	r.Post("/cases/{caseID}/decisions", h.handleCreate)
	r.Get("/cases/{caseID}/decisions", h.handleList)
	r.Get("/decisions/{decisionID}", h.handleGet)
	r.Patch("/decisions/{decisionID}", h.handleUpdate)
	r.Get("/decisions/{decisionID}/history", h.handleHistory)
	r.Post("/decisions/{decisionID}/prepare", h.handlePrepare)
	r.Post("/decisions/{decisionID}/sign", h.handleSign)
	r.Post("/decisions/{decisionID}/void", h.handleVoid)
	r.Delete("/decisions/{decisionID}", h.handleDelete)
	r.Get("/decisions/{decisionID}/integrity", h.handleVerifyIntegrity)
}

type createDecisionRequest struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type updateDecisionRequest struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

type voidDecisionRequest struct {
	Reason string `json:"reason"`
}

type decisionResponse struct {
	ID         string     `json:"id"`
	CaseID     string     `json:"case_id"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	State      string     `json:"state"`
	Version    int        `json:"version"`
	DocumentID string     `json:"document_id,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type historyEntryResponse struct {
	Version   int       `json:"version"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	ChangedAt time.Time `json:"changed_at"`
}

type integrityResponse struct {
	Match           bool      `json:"match"`
	StoredHash      string    `json:"stored_hash"`
	ComputedHash    string    `json:"computed_hash"`
	SignerPseudonym string    `json:"signer_pseudonym"`
	SignatureKeyID  string    `json:"signature_key_id"`
	SignatureAlg    string    `json:"signature_alg"`
	SignedAt        time.Time `json:"signed_at"`
}

func toDecisionResponse(d *decision.Decision) decisionResponse {
	resp := decisionResponse{
		ID:        d.ID.String(),
		CaseID:    d.CaseID.String(),
		Type:      string(d.Type),
		Title:     d.Title,
		Body:      d.Body,
		State:     string(d.State),
		Version:   d.Version,
		SignedAt:  d.SignedAt,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.DocumentID != nil {
		resp.DocumentID = d.DocumentID.String()
	}
	return resp
}

func decisionIDParam(r *http.Request) (domain.DecisionID, error) {
	id, err := domain.ParseDecisionID(chi.URLParam(r, "decisionID"))
	if err != nil {
		return domain.DecisionID{}, dErrors.New(dErrors.CodeBadRequest, "invalid decision id")
	}
	return id, nil
}

func (h *DecisionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caseID, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[createDecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.decisions.Create(ctx, caseID, decision.Type(req.Type), req.Title, req.Body, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "decision creation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDecisionResponse(created))
}

func (h *DecisionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := domain.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case id"))
		return
	}

	decisions, err := h.decisions.List(ctx, caseID, requestcontext.Caller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]decisionResponse, 0, len(decisions))
	for i := range decisions {
		out = append(out, toDecisionResponse(&decisions[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"decisions": out})
}

func (h *DecisionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	found, err := h.decisions.Get(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(found))
}

func (h *DecisionHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[updateDecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	updated, err := h.decisions.Update(ctx, id, decision.Patch{Title: req.Title, Body: req.Body}, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "decision update failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(updated))
}

func (h *DecisionHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	history, err := h.decisions.GetHistory(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]historyEntryResponse, 0, len(history))
	for _, entry := range history {
		out = append(out, historyEntryResponse{
			Version:   entry.Version,
			Title:     entry.Title,
			Body:      entry.Body,
			State:     string(entry.State),
			ChangedAt: entry.ChangedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"versions": out})
}

func (h *DecisionHandler) handlePrepare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	prepared, err := h.decisions.PrepareForSignature(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "decision preparation failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(prepared))
}

func (h *DecisionHandler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	signed, err := h.decisions.Sign(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		h.logger.WarnContext(ctx, "decision signing failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(signed))
}

func (h *DecisionHandler) handleVoid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[voidDecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.decisions.Void(ctx, id, req.Reason, requestcontext.Caller(ctx)); err != nil {
		h.logger.WarnContext(ctx, "decision void failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DecisionHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.decisions.Delete(ctx, id, requestcontext.Caller(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DecisionHandler) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := decisionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.decisions.VerifyIntegrity(ctx, id, requestcontext.Caller(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, integrityResponse{
		Match:           result.Match,
		StoredHash:      result.StoredHash,
		ComputedHash:    result.ComputedHash,
		SignerPseudonym: result.SignerPseudonym,
		SignatureKeyID:  result.SignatureKeyID,
		SignatureAlg:    result.SignatureAlg,
		SignedAt:        result.SignedAt,
	})
}
