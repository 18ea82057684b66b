// Package domain holds identifier types shared across modules.
//
// IDs are typed UUIDs so a CaseID cannot be passed where a DecisionID is
// expected. Parse functions enforce the invariant that IDs are valid,
// non-empty, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "curia/pkg/domain-errors"
)

type (
	// SubjectID identifies a court official (judge, clerk, registrar, admin).
	SubjectID uuid.UUID

	// CaseID identifies a judicial case file.
	CaseID uuid.UUID

	// DecisionID identifies a judicial decision document.
	DecisionID uuid.UUID

	// DocumentID identifies a signed artifact record.
	DocumentID uuid.UUID

	// EventID identifies an audit event row.
	EventID uuid.UUID
)

func (id SubjectID) String() string  { return uuid.UUID(id).String() }
func (id CaseID) String() string     { return uuid.UUID(id).String() }
func (id DecisionID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string    { return uuid.UUID(id).String() }

func (id SubjectID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CaseID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DecisionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewSubjectID returns a fresh random SubjectID.
func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }

// NewCaseID returns a fresh random CaseID.
func NewCaseID() CaseID { return CaseID(uuid.New()) }

// NewDecisionID returns a fresh random DecisionID.
func NewDecisionID() DecisionID { return DecisionID(uuid.New()) }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewEventID returns a fresh random EventID.
func NewEventID() EventID { return EventID(uuid.New()) }

func parseUUID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+what)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return parsed, nil
}

// ParseSubjectID parses and validates a subject ID string.
func ParseSubjectID(raw string) (SubjectID, error) {
	parsed, err := parseUUID(raw, "subject_id")
	return SubjectID(parsed), err
}

// ParseCaseID parses and validates a case ID string.
func ParseCaseID(raw string) (CaseID, error) {
	parsed, err := parseUUID(raw, "case_id")
	return CaseID(parsed), err
}

// ParseDecisionID parses and validates a decision ID string.
func ParseDecisionID(raw string) (DecisionID, error) {
	parsed, err := parseUUID(raw, "decision_id")
	return DecisionID(parsed), err
}

// ParseDocumentID parses and validates a document ID string.
func ParseDocumentID(raw string) (DocumentID, error) {
	parsed, err := parseUUID(raw, "document_id")
	return DocumentID(parsed), err
}
