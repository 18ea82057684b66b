package decision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"curia/internal/audit"
	"curia/internal/casefile"
	"curia/internal/signing"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
	"curia/pkg/requestcontext"
)

// SignCommit is the input to the store's signing transaction. The store
// re-reads the decision under a row lock and applies the whole commit only
// when the expectations still hold.
type SignCommit struct {
	DecisionID      domain.DecisionID
	ExpectedVersion int
	ExpectedAuthor  domain.SubjectID
	Document        *Document
	SignedAt        time.Time

	// CaseState, when set, cascades the parent case's procedural state in the
	// same transaction (final rulings conclude the case).
	CaseState *casefile.ProceduralState

	// Timeline is written best-effort inside a nested savepoint; its failure
	// never fails the signing commit.
	Timeline *casefile.TimelineEntry
}

// Sign finalizes a READY_TO_SIGN decision into an immutable signed document.
//
// Everything expensive or external runs before the row lock: pseudonym
// resolution, rendering, digest computation, the signing call, and artifact
// storage. The store transaction then locks the row, re-validates the state,
// version and author observed here, and applies the commit. A decision that
// moved in between fails with Conflict and leaves only an orphaned artifact
// behind; the document row is the sole source of truth for signed output.
func (s *Service) Sign(ctx context.Context, id domain.DecisionID, caller domain.Caller) (*Decision, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "decision.sign")
	defer span.End()
	span.SetAttributes(attribute.String("decision.id", id.String()))

	d, err := s.authorizeDecision(ctx, id, caller)
	if err != nil {
		s.metrics.IncrementOperation("sign", "denied")
		return nil, failSign(span, err)
	}
	if d.State == StateSigned {
		s.metrics.IncrementOperation("sign", "invalid_state")
		return nil, failSign(span, dErrors.New(dErrors.CodeInvalidState, "decision is already signed"))
	}
	if d.State != StateReadyToSign {
		s.metrics.IncrementOperation("sign", "invalid_state")
		return nil, failSign(span, dErrors.Newf(dErrors.CodeInvalidState, "decision in state %s cannot be signed", d.State))
	}
	if caller.SubjectID != d.AuthorID {
		s.metrics.IncrementOperation("sign", "denied")
		return nil, failSign(span, dErrors.New(dErrors.CodeForbidden, "only the author may sign a decision"))
	}

	parent, err := s.cases.FindByID(ctx, d.CaseID)
	if err != nil {
		s.metrics.IncrementOperation("sign", "error")
		return nil, failSign(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load parent case"))
	}

	pseudonym, err := s.pseudonyms.Issue(ctx, d.AuthorID)
	if err != nil {
		s.metrics.IncrementOperation("sign", "error")
		return nil, failSign(span, err)
	}

	rendered, err := s.signing.Renderer.Render(ctx, signing.RenderInput{
		DecisionID:     d.ID,
		CaseID:         d.CaseID,
		Type:           string(d.Type),
		Title:          d.Title,
		Body:           d.Body,
		JudgePseudonym: pseudonym,
		Version:        d.Version,
		CourtUnit:      parent.CourtUnit,
	})
	if err != nil {
		s.metrics.IncrementOperation("sign", "error")
		return nil, failSign(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render decision"))
	}

	digest := sha256.Sum256(rendered)
	contentHash := hex.EncodeToString(digest[:])

	signature, err := s.signing.Signer.Sign(ctx, d.AuthorID, digest[:])
	if err != nil {
		s.metrics.IncrementOperation("sign", "error")
		return nil, failSign(span, err)
	}

	signedAt := requestcontext.Now(ctx)
	doc := &Document{
		ID:              domain.NewDocumentID(),
		DecisionID:      d.ID,
		CaseID:          d.CaseID,
		SignedBy:        d.AuthorID,
		SignerPseudonym: pseudonym,
		ContentHash:     contentHash,
		SignatureKeyID:  signature.KeyID,
		SignatureAlg:    signature.Algorithm,
		Signature:       signature.Value,
		SignedAt:        signedAt,
	}

	uri, err := s.signing.Artifacts.Save(ctx, doc.ID, rendered)
	if err != nil {
		s.metrics.IncrementOperation("sign", "error")
		return nil, failSign(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store signed artifact"))
	}
	doc.ArtifactURI = uri

	commit := SignCommit{
		DecisionID:      d.ID,
		ExpectedVersion: d.Version,
		ExpectedAuthor:  d.AuthorID,
		Document:        doc,
		SignedAt:        signedAt,
	}
	if d.Type.IsFinalRuling() {
		state := casefile.StateAdjudicated
		commit.CaseState = &state
	}
	timeline := casefile.NewTimelineEntry(d.CaseID, "decision_signed", "decision signed: "+d.Title, &d.ID, signedAt)
	commit.Timeline = &timeline

	// The commit is not cancellable mid-flight: once the signature exists the
	// transaction either lands fully or rolls back on its own terms.
	commitCtx := context.WithoutCancel(ctx)
	if err := s.store.CommitSignature(commitCtx, commit); err != nil {
		return nil, failSign(span, s.translateCommit(err))
	}

	d.State = StateSigned
	d.DocumentID = &doc.ID
	d.SignedAt = &signedAt
	d.UpdatedAt = signedAt

	s.metrics.IncrementOperation("sign", "ok")
	s.metrics.ObserveSignLatency(time.Since(started))
	s.recorder.Record(commitCtx, audit.Entry{
		ActorID:     caller.SubjectID,
		Type:        audit.EventDecisionSigned,
		Severity:    audit.SeverityMedium,
		Description: "decision signed",
		Details: map[string]string{
			"decision_id":      d.ID.String(),
			"case_id":          d.CaseID.String(),
			"document_id":      doc.ID.String(),
			"content_hash":     contentHash,
			"signer_pseudonym": pseudonym,
		},
	})
	return d, nil
}

func (s *Service) translateCommit(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "decision not found")
	case errors.Is(err, sentinel.ErrImmutable):
		s.metrics.IncrementOperation("sign", "invalid_state")
		return dErrors.New(dErrors.CodeInvalidState, "decision was already finalized")
	case errors.Is(err, sentinel.ErrStale):
		s.metrics.IncrementOperation("sign", "conflict")
		return dErrors.New(dErrors.CodeConflict, "decision changed while signing, retry from preparation")
	default:
		s.metrics.IncrementOperation("sign", "error")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit signature")
	}
}

func failSign(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
