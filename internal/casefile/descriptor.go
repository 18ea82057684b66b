package casefile

import (
	"context"

	"github.com/google/uuid"

	"curia/internal/authz"
	"curia/pkg/domain"
)

// NewDescriptor exposes case ownership to the guard. The assigned judge is
// the primary owner; the registering clerk is the secondary attribute
// matched for clerk callers. Reads go straight to the store: the guard
// contract forbids caching here.
func NewDescriptor(store Store) authz.Descriptor {
	return authz.DescriptorFunc(func(ctx context.Context, resourceID uuid.UUID) (authz.Ownership, error) {
		c, err := store.FindByID(ctx, domain.CaseID(resourceID))
		if err != nil {
			return authz.Ownership{}, err
		}
		return authz.Ownership{
			OwnerID:      c.AssignedJudgeID,
			RegisteredBy: c.RegisteredBy,
			Snapshot:     c,
		}, nil
	})
}
