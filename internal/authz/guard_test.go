package authz_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"curia/internal/audit"
	auditmemory "curia/internal/audit/store/memory"
	"curia/internal/authz"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
)

type GuardSuite struct {
	suite.Suite
	auditStore *auditmemory.InMemoryStore
	auditLog   *audit.Log
	guard      *authz.Guard
	owners     map[uuid.UUID]authz.Ownership
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) SetupTest() {
	s.auditStore = auditmemory.NewInMemory()
	s.auditLog = audit.NewLog(s.auditStore)
	s.owners = make(map[uuid.UUID]authz.Ownership)

	var err error
	s.guard, err = authz.NewGuard(s.auditLog)
	s.Require().NoError(err)
	s.guard.Register(authz.KindCase, authz.DescriptorFunc(
		func(_ context.Context, resourceID uuid.UUID) (authz.Ownership, error) {
			ownership, ok := s.owners[resourceID]
			if !ok {
				return authz.Ownership{}, sentinel.ErrNotFound
			}
			return ownership, nil
		}))
}

func (s *GuardSuite) addCase(owner, registeredBy domain.SubjectID) uuid.UUID {
	resourceID := uuid.New()
	s.owners[resourceID] = authz.Ownership{
		OwnerID:      owner,
		RegisteredBy: registeredBy,
		Snapshot:     "case-" + resourceID.String(),
	}
	return resourceID
}

func (s *GuardSuite) drainedEvents() []audit.Event {
	s.auditLog.Drain(context.Background())
	events, err := s.auditStore.ListRange(context.Background(), 1, 1<<30)
	s.Require().NoError(err)
	return events
}

func (s *GuardSuite) TestOwnerIsGranted() {
	ctx := context.Background()
	judge := domain.NewSubjectID()
	resourceID := s.addCase(judge, domain.NewSubjectID())

	grant, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, domain.Caller{SubjectID: judge, Role: domain.RoleJudge})
	s.Require().NoError(err)
	s.Equal(judge, grant.OwnerID)
	s.Equal("case-"+resourceID.String(), grant.Snapshot)

	events := s.drainedEvents()
	s.Require().Len(events, 1)
	s.Equal(audit.EventAuthorizationGranted, events[0].Type)
	s.Equal(audit.SeverityLow, events[0].Severity)
}

// Scenario: judge J1 owns case C1; judge J2 requests C1. The deny must be
// recorded high severity with the intruder as actor and the real owner named.
func (s *GuardSuite) TestForeignJudgeIsDeniedAndAudited() {
	ctx := context.Background()
	owner := domain.NewSubjectID()
	intruder := domain.NewSubjectID()
	resourceID := s.addCase(owner, domain.NewSubjectID())

	_, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, domain.Caller{SubjectID: intruder, Role: domain.RoleJudge})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	events := s.drainedEvents()
	s.Require().Len(events, 1)
	event := events[0]
	s.Equal(audit.EventAuthorizationDenied, event.Type)
	s.Equal(audit.SeverityHigh, event.Severity)
	s.Equal(intruder, event.ActorID)
	s.Equal(owner.String(), event.Details["owner_id"])
	s.Equal(resourceID.String(), event.Details["resource_id"])
}

func (s *GuardSuite) TestAdministratorBypassesOwnership() {
	ctx := context.Background()
	resourceID := s.addCase(domain.NewSubjectID(), domain.NewSubjectID())

	grant, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, domain.Caller{
		SubjectID: domain.NewSubjectID(),
		Role:      domain.RoleAdministrator,
	})
	s.Require().NoError(err)
	s.NotNil(grant)
}

func (s *GuardSuite) TestClerkMatchesRegisteringAttribute() {
	ctx := context.Background()
	clerk := domain.NewSubjectID()
	resourceID := s.addCase(domain.NewSubjectID(), clerk)

	s.Run("registering clerk is granted", func() {
		_, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, domain.Caller{SubjectID: clerk, Role: domain.RoleClerk})
		s.NoError(err)
	})

	s.Run("other clerk is denied", func() {
		_, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, domain.Caller{SubjectID: domain.NewSubjectID(), Role: domain.RoleClerk})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("clerk never matches the judge attribute", func() {
		judgeOwned := s.addCase(clerk, domain.SubjectID{})
		_, err := s.guard.Authorize(ctx, authz.KindCase, judgeOwned, domain.Caller{SubjectID: clerk, Role: domain.RoleClerk})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *GuardSuite) TestMissingCallerIdentityIsDeniedAndAudited() {
	ctx := context.Background()
	resourceID := s.addCase(domain.NewSubjectID(), domain.NewSubjectID())

	_, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, domain.Caller{Role: domain.RoleJudge})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	events := s.drainedEvents()
	s.Require().Len(events, 1)
	s.Equal(audit.EventAuthorizationDenied, events[0].Type)
	s.Equal(audit.SeverityHigh, events[0].Severity)
	s.Equal("caller identity missing", events[0].Details["reason"])
}

func (s *GuardSuite) TestMissingResourceIsNotFoundNotForbidden() {
	ctx := context.Background()

	_, err := s.guard.Authorize(ctx, authz.KindCase, uuid.New(), domain.Caller{
		SubjectID: domain.NewSubjectID(),
		Role:      domain.RoleJudge,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.False(dErrors.HasCode(err, dErrors.CodeForbidden))

	events := s.drainedEvents()
	s.Require().Len(events, 1)
	s.Equal(audit.EventAuthorizationDenied, events[0].Type)
}

// Property: for random (owner, caller, role) combinations, the guard allows
// iff the caller is the owner, the caller is an administrator, or the caller
// is a clerk matching the registering attribute.
func (s *GuardSuite) TestAllowIffOwnerOrBypassProperty() {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	subjects := make([]domain.SubjectID, 6)
	for i := range subjects {
		subjects[i] = domain.NewSubjectID()
	}
	roles := []domain.Role{domain.RoleJudge, domain.RoleClerk, domain.RoleRegistrar, domain.RoleAdministrator}

	for range 200 {
		owner := subjects[rng.Intn(len(subjects))]
		registeredBy := subjects[rng.Intn(len(subjects))]
		caller := domain.Caller{
			SubjectID: subjects[rng.Intn(len(subjects))],
			Role:      roles[rng.Intn(len(roles))],
		}
		resourceID := s.addCase(owner, registeredBy)

		_, err := s.guard.Authorize(ctx, authz.KindCase, resourceID, caller)

		var want bool
		switch caller.Role {
		case domain.RoleAdministrator:
			want = true
		case domain.RoleClerk:
			want = caller.SubjectID == registeredBy
		default:
			want = caller.SubjectID == owner
		}

		if want {
			s.NoError(err, "owner=%s caller=%s role=%s", owner, caller.SubjectID, caller.Role)
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeForbidden),
				"owner=%s caller=%s role=%s", owner, caller.SubjectID, caller.Role)
		}
	}
}
