package casefile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"curia/internal/audit"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
	"curia/pkg/requestcontext"
)

// Store persists cases and their timelines. Mutating methods must honor a
// transaction carried in the context (pkg/platform/tx) so the decision
// signing transaction can cascade case state atomically.
type Store interface {
	Create(ctx context.Context, c *Case) error
	FindByID(ctx context.Context, id domain.CaseID) (*Case, error)
	Reassign(ctx context.Context, id domain.CaseID, judgeID domain.SubjectID, judgePseudonym string) error
	UpdateState(ctx context.Context, id domain.CaseID, state ProceduralState) error
	AppendTimeline(ctx context.Context, entry TimelineEntry) error
	ListTimeline(ctx context.Context, id domain.CaseID) ([]TimelineEntry, error)
}

// PseudonymIssuer resolves a judge's public code, issuing one on first use.
type PseudonymIssuer interface {
	Issue(ctx context.Context, subjectID domain.SubjectID) (string, error)
}

// AuditRecorder records case lifecycle events.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) domain.EventID
}

// Authorizer is the slice of the ownership guard this service needs.
type Authorizer interface {
	AuthorizeCase(ctx context.Context, caseID domain.CaseID, caller domain.Caller) error
}

// Service manages case registration and reassignment.
type Service struct {
	store      Store
	pseudonyms PseudonymIssuer
	recorder   AuditRecorder
	authorizer Authorizer
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuthorizer(authorizer Authorizer) Option {
	return func(s *Service) { s.authorizer = authorizer }
}

func NewService(store Store, pseudonyms PseudonymIssuer, recorder AuditRecorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "case store is required")
	}
	if pseudonyms == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pseudonym issuer is required")
	}
	if recorder == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit recorder is required")
	}
	s := &Service{
		store:      store,
		pseudonyms: pseudonyms,
		recorder:   recorder,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a case assigned to a judge. The registering clerk is
// taken from the caller; the judge's pseudonym is issued (idempotently) so
// the case never stores only the real identity for public surfaces.
func (s *Service) Register(ctx context.Context, judgeID domain.SubjectID, courtUnit, subjectMatter string, caller domain.Caller) (*Case, error) {
	courtUnit = strings.TrimSpace(courtUnit)

	code, err := s.pseudonyms.Issue(ctx, judgeID)
	if err != nil {
		return nil, err
	}

	c, err := NewCase(domain.NewCaseID(), judgeID, code, caller.SubjectID, courtUnit, subjectMatter, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.store.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
	}

	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventCaseRegistered,
		Severity:    audit.SeverityLow,
		Description: "case registered",
		Details: map[string]string{
			"case_id":     c.ID.String(),
			"judge_alias": code,
			"court_unit":  c.CourtUnit,
		},
	})
	return c, nil
}

// Get returns a case after an ownership check when an authorizer is wired.
func (s *Service) Get(ctx context.Context, id domain.CaseID, caller domain.Caller) (*Case, error) {
	if s.authorizer != nil {
		if err := s.authorizer.AuthorizeCase(ctx, id, caller); err != nil {
			return nil, err
		}
	}
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}
	return c, nil
}

// Reassign is the only path that changes a case's assigned judge. Restricted
// to administrators and registrars; the new judge's pseudonym is issued
// before the swap so the stored pair stays consistent.
func (s *Service) Reassign(ctx context.Context, id domain.CaseID, newJudgeID domain.SubjectID, caller domain.Caller) (*Case, error) {
	if caller.Role != domain.RoleAdministrator && caller.Role != domain.RoleRegistrar {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators and registrars may reassign cases")
	}
	if newJudgeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "new judge id is required")
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "case not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case")
	}

	code, err := s.pseudonyms.Issue(ctx, newJudgeID)
	if err != nil {
		return nil, err
	}

	if err := s.store.Reassign(ctx, id, newJudgeID, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reassign case")
	}

	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventCaseReassigned,
		Severity:    audit.SeverityMedium,
		Description: "case reassigned",
		Details: map[string]string{
			"case_id":         id.String(),
			"previous_judge":  current.AssignedJudgeID.String(),
			"new_judge":       newJudgeID.String(),
			"caller_role":     string(caller.Role),
			"court_unit":      current.CourtUnit,
			"new_judge_alias": code,
		},
	})

	reassigned, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reload case")
	}
	return reassigned, nil
}

// Timeline returns the case's procedural history, newest last.
func (s *Service) Timeline(ctx context.Context, id domain.CaseID, caller domain.Caller) ([]TimelineEntry, error) {
	if s.authorizer != nil {
		if err := s.authorizer.AuthorizeCase(ctx, id, caller); err != nil {
			return nil, err
		}
	}
	entries, err := s.store.ListTimeline(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load case timeline")
	}
	return entries, nil
}

// NewTimelineEntry builds a timeline row with a fresh ID.
func NewTimelineEntry(caseID domain.CaseID, kind, description string, decisionID *domain.DecisionID, occurredAt time.Time) TimelineEntry {
	return TimelineEntry{
		ID:          uuid.New(),
		CaseID:      caseID,
		OccurredAt:  occurredAt,
		Kind:        kind,
		Description: description,
		DecisionID:  decisionID,
	}
}
