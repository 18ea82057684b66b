package subject

import (
	"time"

	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
)

// Status marks whether an official may act.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Subject is a court official. Identity is immutable once provisioned; role
// and status may change administratively.
type Subject struct {
	ID        domain.SubjectID
	FullName  string
	Role      domain.Role
	CourtUnit string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubject validates invariants for provisioning.
func NewSubject(id domain.SubjectID, fullName string, role domain.Role, courtUnit string, now time.Time) (*Subject, error) {
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "full name is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown role")
	}
	if courtUnit == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "court unit is required")
	}
	return &Subject{
		ID:        id,
		FullName:  fullName,
		Role:      role,
		CourtUnit: courtUnit,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
