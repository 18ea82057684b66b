package subject_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"curia/internal/audit"
	auditmem "curia/internal/audit/store/memory"
	"curia/internal/signing"
	"curia/internal/subject"
	"curia/internal/subject/store"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
)

type stubIssuer struct {
	codes map[domain.SubjectID]string
	err   error
}

func (s *stubIssuer) Issue(_ context.Context, subjectID domain.SubjectID) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	code := fmt.Sprintf("J-%s", subjectID.String()[:12])
	s.codes[subjectID] = code
	return code, nil
}

type SubjectServiceSuite struct {
	suite.Suite

	auditStore *auditmem.InMemoryStore
	auditLog   *audit.Log
	issuer     *stubIssuer
	service    *subject.Service

	admin domain.Caller
	clerk domain.Caller
}

func (s *SubjectServiceSuite) SetupTest() {
	s.auditStore = auditmem.NewInMemory()
	s.auditLog = audit.NewLog(s.auditStore)
	s.issuer = &stubIssuer{codes: make(map[domain.SubjectID]string)}

	var err error
	s.service, err = subject.NewService(store.NewInMemory(), s.issuer, s.auditLog)
	s.Require().NoError(err)

	s.admin = domain.Caller{SubjectID: domain.NewSubjectID(), Role: domain.RoleAdministrator}
	s.clerk = domain.Caller{SubjectID: domain.NewSubjectID(), Role: domain.RoleClerk}
}

func (s *SubjectServiceSuite) drain() {
	s.auditLog.Drain(context.Background())
}

func (s *SubjectServiceSuite) TestProvisionRequiresAdministrator() {
	_, err := s.service.Provision(context.Background(), "Ada Norén", domain.RoleClerk, "District 4", s.clerk)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *SubjectServiceSuite) TestProvisionClerk() {
	created, err := s.service.Provision(context.Background(), "Ada Norén", domain.RoleClerk, "District 4", s.admin)
	s.Require().NoError(err)
	s.Equal(domain.RoleClerk, created.Role)
	s.Equal(subject.StatusActive, created.Status)
	s.Empty(s.issuer.codes, "clerks get no pseudonym")

	s.drain()
	events, _, err := s.auditLog.Query(context.Background(), audit.Filter{Type: audit.EventSubjectProvisioned}, audit.Page{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(s.admin.SubjectID, events[0].ActorID)
	s.Equal(created.ID.String(), events[0].Details["subject_id"])
}

func (s *SubjectServiceSuite) TestProvisionJudgeIssuesPseudonym() {
	created, err := s.service.Provision(context.Background(), "Berta Lindqvist", domain.RoleJudge, "District 4", s.admin)
	s.Require().NoError(err)
	s.Contains(s.issuer.codes, created.ID)

	s.drain()
	events, _, err := s.auditLog.Query(context.Background(), audit.Filter{Type: audit.EventPseudonymIssued}, audit.Page{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(s.issuer.codes[created.ID], events[0].Details["pseudonym"])
}

func (s *SubjectServiceSuite) TestProvisionJudgeEnrollsCredential() {
	vault := signing.NewVault()
	service, err := subject.NewService(store.NewInMemory(), s.issuer, s.auditLog,
		subject.WithCredentialEnroller(vault))
	s.Require().NoError(err)

	created, err := service.Provision(context.Background(), "Berta Lindqvist", domain.RoleJudge, "District 4", s.admin)
	s.Require().NoError(err)
	s.True(vault.HasValidCredential(context.Background(), created.ID))
}

func (s *SubjectServiceSuite) TestProvisionSurvivesPseudonymFailure() {
	s.issuer.err = fmt.Errorf("vault unreachable")

	created, err := s.service.Provision(context.Background(), "Berta Lindqvist", domain.RoleJudge, "District 4", s.admin)
	s.Require().NoError(err)

	found, err := s.service.Get(context.Background(), created.ID)
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)
}

func (s *SubjectServiceSuite) TestProvisionValidation() {
	_, err := s.service.Provision(context.Background(), "", domain.RoleJudge, "District 4", s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Provision(context.Background(), "Ada Norén", domain.Role("bailiff"), "District 4", s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *SubjectServiceSuite) TestSetStatus() {
	created, err := s.service.Provision(context.Background(), "Ada Norén", domain.RoleClerk, "District 4", s.admin)
	s.Require().NoError(err)

	err = s.service.SetStatus(context.Background(), created.ID, subject.StatusSuspended, s.clerk)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.SetStatus(context.Background(), created.ID, subject.StatusSuspended, s.admin))

	found, err := s.service.Get(context.Background(), created.ID)
	s.Require().NoError(err)
	s.Equal(subject.StatusSuspended, found.Status)

	err = s.service.SetStatus(context.Background(), domain.NewSubjectID(), subject.StatusActive, s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestSubjectServiceSuite(t *testing.T) {
	suite.Run(t, new(SubjectServiceSuite))
}
