package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"curia/internal/audit"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/httputil"
)

// AuditService defines the audit log operations the HTTP layer needs.
type AuditService interface {
	Query(ctx context.Context, filter audit.Filter, page audit.Page) ([]audit.Event, int, error)
	Verify(ctx context.Context, fromSeq, toSeq int64) (audit.Report, error)
}

// AuditHandler handles audit trail endpoints. The router mounts it behind
// the administrator middleware.
type AuditHandler struct {
	logger *slog.Logger
	log    AuditService
}

func NewAuditHandler(log AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{logger: logger, log: log}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleQuery)
	r.Post("/audit/verify", h.handleVerify)
}

type auditEventResponse struct {
	ID          string            `json:"id"`
	Seq         int64             `json:"seq"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     string            `json:"actor_id"`
	Type        string            `json:"type"`
	Severity    string            `json:"severity"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
}

type verifyRequest struct {
	FromSeq int64 `json:"from_seq"`
	ToSeq   int64 `json:"to_seq"`
}

type verifyResponse struct {
	Intact        bool    `json:"intact"`
	Checked       int     `json:"checked"`
	MismatchedSeq []int64 `json:"mismatched_seq,omitempty"`
}

func (h *AuditHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var filter audit.Filter
	if raw := q.Get("actor_id"); raw != "" {
		actorID, err := domain.ParseSubjectID(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid actor id"))
			return
		}
		filter.ActorID = actorID
	}
	filter.Type = audit.EventType(q.Get("type"))
	filter.Severity = audit.Severity(q.Get("severity"))
	for name, target := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "%s is not a valid RFC 3339 timestamp", name))
				return
			}
			*target = t
		}
	}

	var page audit.Page
	page.Limit, _ = strconv.Atoi(q.Get("limit"))
	page.Offset, _ = strconv.Atoi(q.Get("offset"))

	events, total, err := h.log.Query(ctx, filter, page)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:          e.ID.String(),
			Seq:         e.Seq,
			Timestamp:   e.Timestamp,
			ActorID:     e.ActorID.String(),
			Type:        string(e.Type),
			Severity:    string(e.Severity),
			Description: e.Description,
			Details:     e.Details,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": out, "total": total})
}

func (h *AuditHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[verifyRequest](w, r, h.logger, ctx, "")
	if !ok {
		return
	}

	report, err := h.log.Verify(ctx, req.FromSeq, req.ToSeq)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit verification failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		Intact:        report.Intact(),
		Checked:       report.Checked,
		MismatchedSeq: report.MismatchedSeq,
	})
}
