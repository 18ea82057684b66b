package casefile

import (
	"context"

	"github.com/google/uuid"

	"curia/internal/authz"
	"curia/pkg/domain"
)

// GuardAuthorizer adapts the ownership guard to this service's narrow port.
type GuardAuthorizer struct {
	guard *authz.Guard
}

func NewGuardAuthorizer(guard *authz.Guard) *GuardAuthorizer {
	return &GuardAuthorizer{guard: guard}
}

func (a *GuardAuthorizer) AuthorizeCase(ctx context.Context, caseID domain.CaseID, caller domain.Caller) error {
	_, err := a.guard.Authorize(ctx, authz.KindCase, uuid.UUID(caseID), caller)
	return err
}
