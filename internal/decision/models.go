package decision

import (
	"time"

	"github.com/google/uuid"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
)

// State is a decision's lifecycle position. DRAFT and READY_TO_SIGN are
// mutable; SIGNED and VOIDED are terminal and reject every mutation.
type State string

const (
	StateDraft       State = "draft"
	StateReadyToSign State = "ready_to_sign"
	StateSigned      State = "signed"
	StateVoided      State = "voided"
)

// Type classifies a decision. The set is closed; final rulings cascade the
// parent case into the adjudicated procedural state when signed.
type Type string

const (
	TypeProceduralOrder     Type = "procedural_order"
	TypeInterlocutoryOrder  Type = "interlocutory_order"
	TypeFinalRuling         Type = "final_ruling"
	TypeDismissal           Type = "dismissal"
	TypeSummaryAdjudication Type = "summary_adjudication"
)

// IsValid reports membership in the closed type set.
func (t Type) IsValid() bool {
	switch t {
	case TypeProceduralOrder, TypeInterlocutoryOrder, TypeFinalRuling, TypeDismissal, TypeSummaryAdjudication:
		return true
	}
	return false
}

// IsFinalRuling reports whether signing this type concludes the case.
func (t Type) IsFinalRuling() bool {
	switch t {
	case TypeFinalRuling, TypeDismissal, TypeSummaryAdjudication:
		return true
	}
	return false
}

// minimumBodyLength is the shortest draft body accepted for signature
// preparation.
const minimumBodyLength = 50

// Decision is a judicial decision attached to a case. Version increments on
// every content change; the version observed before signing is re-checked
// under the row lock.
type Decision struct {
	ID         domain.DecisionID
	CaseID     domain.CaseID
	AuthorID   domain.SubjectID
	Type       Type
	Title      string
	Body       string
	State      State
	Version    int
	DocumentID *domain.DocumentID
	SignedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDecision validates invariants and builds a version-1 draft.
func NewDecision(id domain.DecisionID, caseID domain.CaseID, authorID domain.SubjectID, decisionType Type, title, body string, now time.Time) (*Decision, error) {
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a decision requires a case")
	}
	if authorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a decision requires an author")
	}
	if !decisionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown decision type")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	return &Decision{
		ID:        id,
		CaseID:    caseID,
		AuthorID:  authorID,
		Type:      decisionType,
		Title:     title,
		Body:      body,
		State:     StateDraft,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Mutable reports whether content changes are still allowed.
func (d *Decision) Mutable() bool {
	return d.State == StateDraft
}

// Terminal reports whether the decision has left the mutable lifecycle.
func (d *Decision) Terminal() bool {
	return d.State == StateSigned || d.State == StateVoided
}

// HistoryEntry is a pre-image snapshot taken before a content change.
type HistoryEntry struct {
	ID         uuid.UUID
	DecisionID domain.DecisionID
	Version    int
	Title      string
	Body       string
	State      State
	ChangedBy  domain.SubjectID
	ChangedAt  time.Time
}

// Document is the immutable signed artifact record. Once inserted it is
// never updated; integrity verification recomputes ContentHash from the
// stored artifact bytes.
type Document struct {
	ID              domain.DocumentID
	DecisionID      domain.DecisionID
	CaseID          domain.CaseID
	SignedBy        domain.SubjectID
	SignerPseudonym string
	ContentHash     string
	SignatureKeyID  string
	SignatureAlg    string
	Signature       []byte
	ArtifactURI     string
	SignedAt        time.Time
}

// Patch carries the updatable draft fields. Nil means "leave unchanged".
type Patch struct {
	Title *string
	Body  *string
}

// IntegrityResult reports a verification pass over a signed decision.
type IntegrityResult struct {
	Match           bool
	StoredHash      string
	ComputedHash    string
	SignerPseudonym string
	SignatureKeyID  string
	SignatureAlg    string
	SignedAt        time.Time
}
