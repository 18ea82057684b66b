package casefile

import (
	"time"

	"github.com/google/uuid"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
)

// ProceduralState tracks where a case stands procedurally. It is independent
// of any decision's lifecycle state.
type ProceduralState string

const (
	StateRegistered  ProceduralState = "registered"
	StateInHearing   ProceduralState = "in_hearing"
	StateAdjudicated ProceduralState = "adjudicated"
	StateClosed      ProceduralState = "closed"
)

// Case is a judicial case file. AssignedJudgeID changes only through the
// explicit Reassign operation, never implicitly.
type Case struct {
	ID                     domain.CaseID
	AssignedJudgeID        domain.SubjectID
	AssignedJudgePseudonym string
	RegisteredBy           domain.SubjectID
	State                  ProceduralState
	CourtUnit              string
	SubjectMatter          string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewCase validates invariants and builds a registered case.
func NewCase(id domain.CaseID, judgeID domain.SubjectID, judgePseudonym string, registeredBy domain.SubjectID, courtUnit, subjectMatter string, now time.Time) (*Case, error) {
	if judgeID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a case requires an assigned judge")
	}
	if judgePseudonym == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a case requires the assigned judge's pseudonym")
	}
	if registeredBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "a case requires the registering clerk")
	}
	if courtUnit == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "court unit is required")
	}
	return &Case{
		ID:                     id,
		AssignedJudgeID:        judgeID,
		AssignedJudgePseudonym: judgePseudonym,
		RegisteredBy:           registeredBy,
		State:                  StateRegistered,
		CourtUnit:              courtUnit,
		SubjectMatter:          subjectMatter,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// TimelineEntry is one row of a case's public procedural history.
type TimelineEntry struct {
	ID          uuid.UUID
	CaseID      domain.CaseID
	OccurredAt  time.Time
	Kind        string
	Description string
	DecisionID  *domain.DecisionID
}
