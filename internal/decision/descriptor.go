package decision

import (
	"context"

	"github.com/google/uuid"

	"curia/internal/authz"
	"curia/pkg/domain"
)

// NewDescriptor exposes decision ownership to the guard. The author owns the
// decision; the registering clerk of the parent case is the secondary
// attribute matched for clerk callers. Reads go straight to the stores: the
// guard contract forbids caching here.
func NewDescriptor(store Store, cases CaseReader) authz.Descriptor {
	return authz.DescriptorFunc(func(ctx context.Context, resourceID uuid.UUID) (authz.Ownership, error) {
		d, err := store.FindByID(ctx, domain.DecisionID(resourceID))
		if err != nil {
			return authz.Ownership{}, err
		}
		ownership := authz.Ownership{OwnerID: d.AuthorID, Snapshot: d}
		// Without the parent case the clerk attribute stays unset and clerk
		// callers are denied.
		if c, err := cases.FindByID(ctx, d.CaseID); err == nil {
			ownership.RegisteredBy = c.RegisteredBy
		}
		return ownership, nil
	})
}
