// Package decision implements the decision lifecycle: drafting, versioned
// updates with pre-image history, signature preparation, the signing
// transaction, and post-signature integrity verification.
package decision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"curia/internal/audit"
	"curia/internal/authz"
	"curia/internal/casefile"
	"curia/internal/decision/metrics"
	"curia/internal/signing"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
	"curia/pkg/requestcontext"
)

// Store persists decisions, their history and signed documents. Update and
// Transition are guarded by the caller's observed version/state and return
// sentinel.ErrStale when the row moved underneath.
type Store interface {
	Create(ctx context.Context, d *Decision) error
	FindByID(ctx context.Context, id domain.DecisionID) (*Decision, error)
	ListByCase(ctx context.Context, caseID domain.CaseID) ([]Decision, error)
	// Update persists the new content and the pre-image history snapshot
	// atomically, expecting the stored version to still equal expectedVersion.
	Update(ctx context.Context, d *Decision, expectedVersion int, history HistoryEntry) error
	// Transition moves the lifecycle state iff the stored state equals from.
	Transition(ctx context.Context, id domain.DecisionID, from, to State) error
	Delete(ctx context.Context, id domain.DecisionID) error
	ListHistory(ctx context.Context, id domain.DecisionID) ([]HistoryEntry, error)
	// CommitSignature runs the multi-table signing transaction.
	CommitSignature(ctx context.Context, commit SignCommit) error
	FindDocument(ctx context.Context, id domain.DocumentID) (*Document, error)
}

// Authorizer is the ownership guard surface this service needs.
type Authorizer interface {
	Authorize(ctx context.Context, kind authz.ResourceKind, resourceID uuid.UUID, caller domain.Caller) (*authz.Grant, error)
}

// CaseReader loads the parent case for rendering and cascade decisions.
type CaseReader interface {
	FindByID(ctx context.Context, id domain.CaseID) (*casefile.Case, error)
}

// PseudonymIssuer resolves the author's public code, issuing one on first use.
type PseudonymIssuer interface {
	Issue(ctx context.Context, subjectID domain.SubjectID) (string, error)
}

// Signer produces a detached signature over a content digest.
type Signer interface {
	Sign(ctx context.Context, signerID domain.SubjectID, digest []byte) (signing.Signature, error)
}

// CredentialChecker reports whether an official holds a usable signing
// credential, without exposing the credential itself.
type CredentialChecker interface {
	HasValidCredential(ctx context.Context, subjectID domain.SubjectID) bool
}

// Renderer produces the canonical artifact bytes for a decision.
type Renderer interface {
	Render(ctx context.Context, in signing.RenderInput) ([]byte, error)
}

// ArtifactStore persists rendered artifact bytes write-once.
type ArtifactStore interface {
	Save(ctx context.Context, docID domain.DocumentID, data []byte) (string, error)
	Load(ctx context.Context, uri string) ([]byte, error)
}

// AuditRecorder records lifecycle events. Record never fails the caller's
// operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) domain.EventID
}

// SigningDeps bundles the external signing collaborators.
type SigningDeps struct {
	Signer      Signer
	Credentials CredentialChecker
	Renderer    Renderer
	Artifacts   ArtifactStore
}

// Service manages the decision lifecycle.
type Service struct {
	store      Store
	cases      CaseReader
	guard      Authorizer
	pseudonyms PseudonymIssuer
	signing    SigningDeps
	recorder   AuditRecorder
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, cases CaseReader, guard Authorizer, recorder AuditRecorder, pseudonyms PseudonymIssuer, signingDeps SigningDeps, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision store is required")
	}
	if cases == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "case reader is required")
	}
	if guard == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "authorization guard is required")
	}
	if recorder == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audit recorder is required")
	}
	if pseudonyms == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "pseudonym issuer is required")
	}
	if signingDeps.Signer == nil || signingDeps.Credentials == nil || signingDeps.Renderer == nil || signingDeps.Artifacts == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing collaborators are required")
	}
	s := &Service{
		store:      store,
		cases:      cases,
		guard:      guard,
		recorder:   recorder,
		pseudonyms: pseudonyms,
		signing:    signingDeps,
		logger:     slog.Default(),
		tracer:     otel.Tracer("curia/decision"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create drafts a decision on a case. The caller must pass the ownership
// check against the case and becomes the decision's author; only the case's
// assigned judge can author, even for callers the guard would bypass.
func (s *Service) Create(ctx context.Context, caseID domain.CaseID, decisionType Type, title, body string, caller domain.Caller) (*Decision, error) {
	grant, err := s.guard.Authorize(ctx, authz.KindCase, uuid.UUID(caseID), caller)
	if err != nil {
		s.metrics.IncrementOperation("create", "denied")
		return nil, err
	}
	if caller.SubjectID != grant.OwnerID {
		s.metrics.IncrementOperation("create", "denied")
		return nil, dErrors.New(dErrors.CodeForbidden, "only the assigned judge may draft a decision on this case")
	}

	d, err := NewDecision(domain.NewDecisionID(), caseID, caller.SubjectID, decisionType, strings.TrimSpace(title), body, requestcontext.Now(ctx))
	if err != nil {
		s.metrics.IncrementOperation("create", "error")
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.store.Create(ctx, d); err != nil {
		s.metrics.IncrementOperation("create", "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create decision")
	}

	s.metrics.IncrementOperation("create", "ok")
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventDecisionCreated,
		Severity:    audit.SeverityLow,
		Description: "decision drafted",
		Details: map[string]string{
			"decision_id":   d.ID.String(),
			"case_id":       caseID.String(),
			"decision_type": string(decisionType),
		},
	})
	return d, nil
}

// Get returns one decision after the ownership check.
func (s *Service) Get(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*Decision, error) {
	return s.authorizeDecision(ctx, id, caller)
}

// List returns a case's decisions after the ownership check on the case.
func (s *Service) List(ctx context.Context, caseID domain.CaseID, caller domain.Caller) ([]Decision, error) {
	if _, err := s.guard.Authorize(ctx, authz.KindCase, uuid.UUID(caseID), caller); err != nil {
		return nil, err
	}
	decisions, err := s.store.ListByCase(ctx, caseID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list decisions")
	}
	return decisions, nil
}

// GetHistory returns the pre-image snapshots of a decision, oldest first.
func (s *Service) GetHistory(ctx context.Context, id domain.DecisionID, caller domain.Caller) ([]HistoryEntry, error) {
	if _, err := s.authorizeDecision(ctx, id, caller); err != nil {
		return nil, err
	}
	history, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decision history")
	}
	return history, nil
}

// Update applies a content patch to a draft. Author only. The pre-image is
// snapshotted to history and the version increments.
func (s *Service) Update(ctx context.Context, id domain.DecisionID, patch Patch, caller domain.Caller) (*Decision, error) {
	d, err := s.authorizeDecision(ctx, id, caller)
	if err != nil {
		s.metrics.IncrementOperation("update", "denied")
		return nil, err
	}
	if !d.Mutable() {
		s.metrics.IncrementOperation("update", "invalid_state")
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "decision in state %s cannot be updated", d.State)
	}
	if caller.SubjectID != d.AuthorID {
		s.metrics.IncrementOperation("update", "denied")
		return nil, dErrors.New(dErrors.CodeForbidden, "only the author may update a draft")
	}
	if patch.Title == nil && patch.Body == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "patch is empty")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title cannot be blank")
	}

	now := requestcontext.Now(ctx)
	preImage := HistoryEntry{
		ID:         uuid.New(),
		DecisionID: d.ID,
		Version:    d.Version,
		Title:      d.Title,
		Body:       d.Body,
		State:      d.State,
		ChangedBy:  caller.SubjectID,
		ChangedAt:  now,
	}

	expectedVersion := d.Version
	if patch.Title != nil {
		d.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Body != nil {
		d.Body = *patch.Body
	}
	d.Version++
	d.UpdatedAt = now

	if err := s.store.Update(ctx, d, expectedVersion, preImage); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			s.metrics.IncrementOperation("update", "conflict")
			return nil, dErrors.New(dErrors.CodeConflict, "decision changed concurrently, retry with fresh state")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
		}
		s.metrics.IncrementOperation("update", "error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update decision")
	}

	s.metrics.IncrementOperation("update", "ok")
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventDecisionUpdated,
		Severity:    audit.SeverityLow,
		Description: "decision draft updated",
		Details: map[string]string{
			"decision_id": d.ID.String(),
			"case_id":     d.CaseID.String(),
			"version":     strconv.Itoa(d.Version),
		},
	})
	return d, nil
}

// PrepareForSignature moves a draft to READY_TO_SIGN. The draft must carry a
// substantive body and the author must hold a usable signing credential.
// Only the author may prepare: the signature about to be produced is theirs.
func (s *Service) PrepareForSignature(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*Decision, error) {
	d, err := s.authorizeDecision(ctx, id, caller)
	if err != nil {
		s.metrics.IncrementOperation("prepare", "denied")
		return nil, err
	}
	if d.State != StateDraft {
		s.metrics.IncrementOperation("prepare", "invalid_state")
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "decision in state %s cannot be prepared for signature", d.State)
	}
	if caller.SubjectID != d.AuthorID {
		s.metrics.IncrementOperation("prepare", "denied")
		return nil, dErrors.New(dErrors.CodeForbidden, "only the author may prepare a decision for signature")
	}
	if len(strings.TrimSpace(d.Body)) < minimumBodyLength {
		return nil, dErrors.Newf(dErrors.CodeValidation, "draft body must be at least %d characters", minimumBodyLength)
	}
	if !s.signing.Credentials.HasValidCredential(ctx, d.AuthorID) {
		s.metrics.IncrementOperation("prepare", "error")
		return nil, dErrors.New(dErrors.CodeCredential, "author has no usable signing credential")
	}

	if err := s.store.Transition(ctx, id, StateDraft, StateReadyToSign); err != nil {
		return nil, s.translateTransition(err, "prepare")
	}
	d.State = StateReadyToSign

	s.metrics.IncrementOperation("prepare", "ok")
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventDecisionPrepared,
		Severity:    audit.SeverityLow,
		Description: "decision prepared for signature",
		Details: map[string]string{
			"decision_id": d.ID.String(),
			"case_id":     d.CaseID.String(),
			"version":     strconv.Itoa(d.Version),
		},
	})
	return d, nil
}

// Delete hard-removes a draft. Drafts only; signed output is immutable and
// voiding is the only retraction path after signature.
func (s *Service) Delete(ctx context.Context, id domain.DecisionID, caller domain.Caller) error {
	d, err := s.authorizeDecision(ctx, id, caller)
	if err != nil {
		s.metrics.IncrementOperation("delete", "denied")
		return err
	}
	if d.State != StateDraft {
		s.metrics.IncrementOperation("delete", "invalid_state")
		return dErrors.Newf(dErrors.CodeInvalidState, "decision in state %s cannot be deleted", d.State)
	}
	if caller.SubjectID != d.AuthorID && caller.Role != domain.RoleAdministrator {
		s.metrics.IncrementOperation("delete", "denied")
		return dErrors.New(dErrors.CodeForbidden, "only the author may delete a draft")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "decision not found")
		}
		s.metrics.IncrementOperation("delete", "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete decision")
	}

	s.metrics.IncrementOperation("delete", "ok")
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventDecisionDeleted,
		Severity:    audit.SeverityMedium,
		Description: "decision draft deleted",
		Details: map[string]string{
			"decision_id": d.ID.String(),
			"case_id":     d.CaseID.String(),
		},
	})
	return nil
}

// Void retracts an unsigned decision administratively. Signed decisions are
// immutable; retracting one is a legal act outside this system.
func (s *Service) Void(ctx context.Context, id domain.DecisionID, reason string, caller domain.Caller) error {
	if caller.Role != domain.RoleAdministrator {
		s.metrics.IncrementOperation("void", "denied")
		return dErrors.New(dErrors.CodeForbidden, "only administrators may void decisions")
	}
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "a void reason is required")
	}

	d, err := s.authorizeDecision(ctx, id, caller)
	if err != nil {
		return err
	}
	if d.Terminal() {
		s.metrics.IncrementOperation("void", "invalid_state")
		return dErrors.Newf(dErrors.CodeInvalidState, "decision in state %s cannot be voided", d.State)
	}

	if err := s.store.Transition(ctx, id, d.State, StateVoided); err != nil {
		return s.translateTransition(err, "void")
	}

	s.metrics.IncrementOperation("void", "ok")
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventDecisionVoided,
		Severity:    audit.SeverityHigh,
		Description: "decision voided",
		Details: map[string]string{
			"decision_id":    d.ID.String(),
			"case_id":        d.CaseID.String(),
			"previous_state": string(d.State),
			"reason":         strings.TrimSpace(reason),
		},
	})
	return nil
}

// VerifyIntegrity re-reads the stored artifact, recomputes its digest and
// compares it with the hash captured at signing time.
func (s *Service) VerifyIntegrity(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*IntegrityResult, error) {
	d, err := s.authorizeDecision(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	if d.State != StateSigned && d.State != StateVoided || d.DocumentID == nil {
		return nil, dErrors.New(dErrors.CodeInvalidState, "decision has no signed document to verify")
	}

	doc, err := s.store.FindDocument(ctx, *d.DocumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeIntegrityMismatch, "signed document record is missing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signed document")
	}

	result := &IntegrityResult{
		StoredHash:      doc.ContentHash,
		SignerPseudonym: doc.SignerPseudonym,
		SignatureKeyID:  doc.SignatureKeyID,
		SignatureAlg:    doc.SignatureAlg,
		SignedAt:        doc.SignedAt,
	}

	data, err := s.signing.Artifacts.Load(ctx, doc.ArtifactURI)
	switch {
	case err == nil:
		sum := sha256.Sum256(data)
		result.ComputedHash = hex.EncodeToString(sum[:])
		result.Match = result.ComputedHash == doc.ContentHash
	case errors.Is(err, sentinel.ErrNotFound):
		result.Match = false
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load signed artifact")
	}

	severity := audit.SeverityLow
	if !result.Match {
		severity = audit.SeverityHigh
	}
	s.recorder.Record(ctx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventIntegrityChecked,
		Severity:    severity,
		Description: "signed document integrity checked",
		Details: map[string]string{
			"decision_id": d.ID.String(),
			"document_id": doc.ID.String(),
			"match":       boolString(result.Match),
		},
	})
	return result, nil
}

// authorizeDecision runs the guard and hands back the decision snapshot the
// check was made against.
func (s *Service) authorizeDecision(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*Decision, error) {
	grant, err := s.guard.Authorize(ctx, authz.KindDecision, uuid.UUID(id), caller)
	if err != nil {
		return nil, err
	}
	if d, ok := grant.Snapshot.(*Decision); ok {
		return d, nil
	}
	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "decision not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decision")
	}
	return d, nil
}

func (s *Service) translateTransition(err error, operation string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "decision not found")
	case errors.Is(err, sentinel.ErrStale):
		s.metrics.IncrementOperation(operation, "conflict")
		return dErrors.New(dErrors.CodeConflict, "decision changed concurrently, retry with fresh state")
	default:
		s.metrics.IncrementOperation(operation, "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transition decision state")
	}
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
