package authz

import (
	"context"

	"github.com/google/uuid"

	"curia/pkg/domain"
)

// ResourceKind names a guarded resource type.
type ResourceKind string

const (
	KindCase     ResourceKind = "case"
	KindDecision ResourceKind = "decision"
)

// Ownership is the live-read owner view of one resource. Snapshot carries
// the freshly fetched resource so a granted caller does not re-read it.
type Ownership struct {
	// OwnerID is the primary ownership attribute (e.g. the assigned judge).
	OwnerID domain.SubjectID
	// RegisteredBy is the secondary ownership attribute matched for clerk
	// callers (e.g. the clerk who registered the case). Nil UUID when the
	// resource kind has no such attribute.
	RegisteredBy domain.SubjectID
	// Snapshot is the resource as read during the check.
	Snapshot any
}

// Descriptor fetches the current ownership of one resource kind. One
// implementation per kind replaces per-resource copies of the same check.
//
// Implementations must read fresh state on every call; returning cached
// ownership would let a reassigned resource keep honoring its old owner.
type Descriptor interface {
	FetchOwnership(ctx context.Context, resourceID uuid.UUID) (Ownership, error)
}

// DescriptorFunc adapts a function to the Descriptor interface.
type DescriptorFunc func(ctx context.Context, resourceID uuid.UUID) (Ownership, error)

func (f DescriptorFunc) FetchOwnership(ctx context.Context, resourceID uuid.UUID) (Ownership, error) {
	return f(ctx, resourceID)
}
