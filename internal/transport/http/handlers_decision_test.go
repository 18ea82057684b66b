package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"curia/internal/audit"
	auditmem "curia/internal/audit/store/memory"
	"curia/internal/authz"
	"curia/internal/casefile"
	casestore "curia/internal/casefile/store"
	"curia/internal/decision"
	decstore "curia/internal/decision/store"
	"curia/internal/pseudonym"
	pseudostore "curia/internal/pseudonym/store"
	"curia/internal/signing"
	"curia/internal/subject"
	subjectstore "curia/internal/subject/store"
	httptransport "curia/internal/transport/http"
	"curia/pkg/domain"
	"curia/pkg/platform/middleware/auth"
)

// stubValidator maps opaque test tokens straight to claims.
type stubValidator struct {
	claims map[string]*auth.JWTClaims
}

func (v *stubValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	claims, ok := v.claims[token]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return claims, nil
}

type RouterSuite struct {
	suite.Suite

	router   http.Handler
	auditLog *audit.Log
	vault    *signing.Vault

	judge domain.Caller
	clerk domain.Caller
	admin domain.Caller
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditLog := audit.NewLog(auditmem.NewInMemory())
	s.auditLog = auditLog

	caseStore := casestore.NewInMemory()
	decStore := decstore.NewInMemory(caseStore)

	guard, err := authz.NewGuard(auditLog)
	s.Require().NoError(err)
	guard.Register(authz.KindCase, casefile.NewDescriptor(caseStore))
	guard.Register(authz.KindDecision, decision.NewDescriptor(decStore, caseStore))

	directory, err := pseudonym.NewDirectory([]byte("0123456789abcdef0123456789abcdef"), pseudostore.NewInMemory())
	s.Require().NoError(err)

	s.vault = signing.NewVault()
	artifacts, err := signing.NewFilesystemArtifacts(s.T().TempDir())
	s.Require().NoError(err)

	caseService, err := casefile.NewService(caseStore, directory, auditLog,
		casefile.WithAuthorizer(casefile.NewGuardAuthorizer(guard)))
	s.Require().NoError(err)

	decisionService, err := decision.NewService(decStore, caseStore, guard, auditLog, directory,
		decision.SigningDeps{
			Signer:      s.vault,
			Credentials: s.vault,
			Renderer:    signing.NewTextRenderer(),
			Artifacts:   artifacts,
		})
	s.Require().NoError(err)

	subjectService, err := subject.NewService(subjectstore.NewInMemory(), directory, auditLog)
	s.Require().NoError(err)

	s.judge = domain.Caller{SubjectID: domain.NewSubjectID(), Role: domain.RoleJudge}
	s.clerk = domain.Caller{SubjectID: domain.NewSubjectID(), Role: domain.RoleClerk}
	s.admin = domain.Caller{SubjectID: domain.NewSubjectID(), Role: domain.RoleAdministrator}

	_, err = s.vault.Enroll(s.judge.SubjectID)
	s.Require().NoError(err)

	validator := &stubValidator{claims: map[string]*auth.JWTClaims{
		"judge-token":    {SubjectID: s.judge.SubjectID.String(), Role: string(s.judge.Role)},
		"clerk-token":    {SubjectID: s.clerk.SubjectID.String(), Role: string(s.clerk.Role)},
		"admin-token":    {SubjectID: s.admin.SubjectID.String(), Role: string(s.admin.Role)},
		"intruder-token": {SubjectID: domain.NewSubjectID().String(), Role: string(domain.RoleJudge)},
	}}

	s.router = httptransport.NewRouter(httptransport.Deps{
		Logger:     logger,
		Validator:  validator,
		Cases:      httptransport.NewCaseHandler(caseService, logger),
		Decisions:  httptransport.NewDecisionHandler(decisionService, logger),
		Subjects:   httptransport.NewSubjectHandler(subjectService, logger),
		Pseudonyms: httptransport.NewPseudonymHandler(directory, logger),
		Audit:      httptransport.NewAuditHandler(auditLog, logger),
	})
}

func (s *RouterSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder) map[string]any {
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func (s *RouterSuite) registerCase() string {
	w := s.do(http.MethodPost, "/cases", "clerk-token", map[string]string{
		"assigned_judge_id": s.judge.SubjectID.String(),
		"court_unit":        "District 4",
		"subject_matter":    "civil claim",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return s.decode(w)["id"].(string)
}

func (s *RouterSuite) TestRequiresBearerToken() {
	w := s.do(http.MethodPost, "/cases", "", map[string]string{})
	s.Equal(http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/cases", "bogus", map[string]string{})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterSuite) TestCaseResponseHidesJudgeIdentity() {
	caseID := s.registerCase()

	w := s.do(http.MethodGet, "/cases/"+caseID, "judge-token", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.True(strings.HasPrefix(resp["judge_pseudonym"].(string), "J-"))
	s.NotContains(w.Body.String(), s.judge.SubjectID.String())
}

func (s *RouterSuite) TestDecisionLifecycleOverHTTP() {
	caseID := s.registerCase()
	body := strings.Repeat("The court finds as follows. ", 4)

	w := s.do(http.MethodPost, "/cases/"+caseID+"/decisions", "judge-token", map[string]string{
		"type":  "final_ruling",
		"title": "Judgment",
		"body":  body,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	created := s.decode(w)
	decisionID := created["id"].(string)
	s.Equal("draft", created["state"])

	w = s.do(http.MethodPost, "/decisions/"+decisionID+"/prepare", "judge-token", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/decisions/"+decisionID+"/sign", "judge-token", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	signed := s.decode(w)
	s.Equal("signed", signed["state"])
	s.NotEmpty(signed["document_id"])

	// Signing is terminal: a second attempt conflicts.
	w = s.do(http.MethodPost, "/decisions/"+decisionID+"/sign", "judge-token", nil)
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("invalid_state", s.decode(w)["error"])

	w = s.do(http.MethodGet, "/decisions/"+decisionID+"/integrity", "judge-token", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(true, s.decode(w)["match"])

	w = s.do(http.MethodGet, "/cases/"+caseID, "judge-token", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("adjudicated", s.decode(w)["state"])
}

func (s *RouterSuite) TestForeignJudgeGetsForbidden() {
	caseID := s.registerCase()

	w := s.do(http.MethodPost, "/cases/"+caseID+"/decisions", "intruder-token", map[string]string{
		"type":  "procedural_order",
		"title": "Order",
		"body":  "short",
	})
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal("forbidden", s.decode(w)["error"])
}

func (s *RouterSuite) TestSubjectRoutesAreAdminOnly() {
	payload := map[string]string{
		"full_name":  "Ada Norén",
		"role":       "clerk",
		"court_unit": "District 4",
	}

	w := s.do(http.MethodPost, "/subjects", "clerk-token", payload)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/subjects", "admin-token", payload)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("active", s.decode(w)["status"])
}

func (s *RouterSuite) TestAuditQueryIsAdminOnly() {
	s.registerCase()
	s.auditLog.Drain(context.Background())

	w := s.do(http.MethodGet, "/audit/events?type=authorization_granted", "judge-token", nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/audit/events?type=case_registered", "admin-token", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	resp := s.decode(w)
	s.GreaterOrEqual(resp["total"].(float64), float64(1))
}

func (s *RouterSuite) TestUnmaskRequiresAdministrator() {
	caseID := s.registerCase()

	w := s.do(http.MethodGet, "/cases/"+caseID, "judge-token", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	code := s.decode(w)["judge_pseudonym"].(string)

	w = s.do(http.MethodGet, "/pseudonyms/"+code+"/subject", "clerk-token", nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/pseudonyms/"+code+"/subject", "admin-token", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(s.judge.SubjectID.String(), s.decode(w)["subject_id"])
}

func (s *RouterSuite) TestHealthEndpointIsPublic() {
	w := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusNoContent, w.Code)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
