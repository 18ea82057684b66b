package signing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"curia/internal/signing"
	"curia/pkg/domain"
	dErrors "curia/pkg/domain-errors"
	"curia/pkg/platform/sentinel"
)

type SigningSuite struct {
	suite.Suite

	vault *signing.Vault
	judge domain.SubjectID
}

func (s *SigningSuite) SetupTest() {
	s.vault = signing.NewVault()
	s.judge = domain.NewSubjectID()
}

func (s *SigningSuite) TestSignAndVerify() {
	_, err := s.vault.Enroll(s.judge)
	s.Require().NoError(err)

	digest := []byte("content digest")
	sig, err := s.vault.Sign(context.Background(), s.judge, digest)
	s.Require().NoError(err)
	s.Equal("Ed25519", sig.Algorithm)
	s.True(s.vault.VerifySignature(s.judge, digest, sig))
	s.False(s.vault.VerifySignature(s.judge, []byte("other digest"), sig))
}

func (s *SigningSuite) TestMissingCredential() {
	_, err := s.vault.Sign(context.Background(), s.judge, []byte("digest"))
	s.True(dErrors.HasCode(err, dErrors.CodeCredential))
}

func (s *SigningSuite) TestRevokedCredential() {
	_, err := s.vault.Enroll(s.judge)
	s.Require().NoError(err)
	s.vault.Revoke(s.judge)

	_, err = s.vault.Sign(context.Background(), s.judge, []byte("digest"))
	s.True(dErrors.HasCode(err, dErrors.CodeCredential))
}

func (s *SigningSuite) TestRendererIsDeterministic() {
	renderer := signing.NewTextRenderer()
	in := signing.RenderInput{
		DecisionID:     domain.NewDecisionID(),
		CaseID:         domain.NewCaseID(),
		Type:           "final_ruling",
		Title:          "Judgment",
		Body:           "The claim is dismissed.",
		JudgePseudonym: "J-ABCDEF234567",
		Version:        3,
		CourtUnit:      "District 4",
	}

	first, err := renderer.Render(context.Background(), in)
	s.Require().NoError(err)
	second, err := renderer.Render(context.Background(), in)
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Contains(string(first), "J-ABCDEF234567")
}

func (s *SigningSuite) TestRendererRejectsMissingPseudonym() {
	renderer := signing.NewTextRenderer()
	_, err := renderer.Render(context.Background(), signing.RenderInput{Title: "Judgment"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *SigningSuite) TestArtifactsSaveOnce() {
	store, err := signing.NewFilesystemArtifacts(s.T().TempDir())
	s.Require().NoError(err)

	docID := domain.NewDocumentID()
	uri, err := store.Save(context.Background(), docID, []byte("rendered"))
	s.Require().NoError(err)

	loaded, err := store.Load(context.Background(), uri)
	s.Require().NoError(err)
	s.Equal([]byte("rendered"), loaded)

	_, err = store.Save(context.Background(), docID, []byte("tampered"))
	s.True(errors.Is(err, sentinel.ErrConflict))
}

func TestSigningSuite(t *testing.T) {
	suite.Run(t, new(SigningSuite))
}
