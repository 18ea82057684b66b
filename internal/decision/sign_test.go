package decision_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"curia/internal/audit"
	"curia/internal/casefile"
	"curia/internal/decision"
	"curia/internal/signing"
	dErrors "curia/pkg/domain-errors"
)

func signingSig(doc *decision.Document) signing.Signature {
	return signing.Signature{
		KeyID:     doc.SignatureKeyID,
		Algorithm: doc.SignatureAlg,
		Value:     doc.Signature,
	}
}

type SignSuite struct {
	DecisionServiceSuite
}

func (s *SignSuite) ready(decisionType decision.Type) *decision.Decision {
	d, err := s.service.Create(context.Background(), s.kase.ID, decisionType, "Judgment", longBody, s.judge)
	s.Require().NoError(err)
	prepared, err := s.service.PrepareForSignature(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	return prepared
}

func (s *SignSuite) TestSignProducesImmutableDocument() {
	d := s.ready(decision.TypeProceduralOrder)

	signed, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	s.Equal(decision.StateSigned, signed.State)
	s.Require().NotNil(signed.DocumentID)
	s.Require().NotNil(signed.SignedAt)

	doc, err := s.decStore.FindDocument(context.Background(), *signed.DocumentID)
	s.Require().NoError(err)
	s.Equal(s.judge.SubjectID, doc.SignedBy)
	s.True(strings.HasPrefix(doc.SignerPseudonym, "J-"))
	s.NotContains(doc.SignerPseudonym, s.judge.SubjectID.String())

	// The stored hash matches the artifact bytes and the signature checks
	// out against the vault credential.
	data, err := s.artifacts.Load(context.Background(), doc.ArtifactURI)
	s.Require().NoError(err)
	sum := sha256.Sum256(data)
	s.Equal(hex.EncodeToString(sum[:]), doc.ContentHash)
	s.True(s.vault.VerifySignature(s.judge.SubjectID, sum[:], signingSig(doc)))
	s.Contains(string(data), doc.SignerPseudonym)
	s.NotContains(string(data), s.judge.SubjectID.String())

	events := s.queryAudit(audit.EventDecisionSigned)
	s.Require().Len(events, 1)
	s.Equal(doc.ID.String(), events[0].Details["document_id"])

	entries, err := s.caseStore.ListTimeline(context.Background(), s.kase.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("decision_signed", entries[0].Kind)
	s.Require().NotNil(entries[0].DecisionID)
	s.Equal(d.ID, *entries[0].DecisionID)
}

func (s *SignSuite) TestFinalRulingCascadesCaseState() {
	d := s.ready(decision.TypeFinalRuling)

	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)

	kase, err := s.caseStore.FindByID(context.Background(), s.kase.ID)
	s.Require().NoError(err)
	s.Equal(casefile.StateAdjudicated, kase.State)
}

func (s *SignSuite) TestProceduralOrderLeavesCaseState() {
	d := s.ready(decision.TypeProceduralOrder)

	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)

	kase, err := s.caseStore.FindByID(context.Background(), s.kase.ID)
	s.Require().NoError(err)
	s.Equal(casefile.StateRegistered, kase.State)
}

func (s *SignSuite) TestSignedRejectsAllMutation() {
	d := s.ready(decision.TypeProceduralOrder)
	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)

	_, err = s.service.Sign(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "second sign")

	title := "Amended"
	_, err = s.service.Update(context.Background(), d.ID, decision.Patch{Title: &title}, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "update after sign")

	_, err = s.service.PrepareForSignature(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "prepare after sign")

	err = s.service.Delete(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "delete after sign")

	err = s.service.Void(context.Background(), d.ID, "withdrawn", s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "void after sign")
}

func (s *SignSuite) TestSignRequiresReadyState() {
	d := s.draft(longBody)
	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *SignSuite) TestSignAuthorOnly() {
	d := s.ready(decision.TypeProceduralOrder)

	_, err := s.service.Sign(context.Background(), d.ID, s.clerk)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Sign(context.Background(), d.ID, s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *SignSuite) TestSignFailsWithoutCredential() {
	d := s.ready(decision.TypeProceduralOrder)
	s.vault.Revoke(s.judge.SubjectID)

	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeCredential))

	got, err := s.service.Get(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	s.Equal(decision.StateReadyToSign, got.State)
}

func (s *SignSuite) TestFailedCommitLeavesNoPartialState() {
	d := s.ready(decision.TypeFinalRuling)
	s.decStore.FailCommit = true

	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	got, err := s.service.Get(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	s.Equal(decision.StateReadyToSign, got.State)
	s.Nil(got.DocumentID)

	kase, err := s.caseStore.FindByID(context.Background(), s.kase.ID)
	s.Require().NoError(err)
	s.Equal(casefile.StateRegistered, kase.State)

	entries, err := s.caseStore.ListTimeline(context.Background(), s.kase.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *SignSuite) TestTimelineFailureDoesNotFailSigning() {
	d := s.ready(decision.TypeProceduralOrder)
	s.caseStore.FailTimeline = true

	signed, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	s.Equal(decision.StateSigned, signed.State)

	s.caseStore.FailTimeline = false
	entries, err := s.caseStore.ListTimeline(context.Background(), s.kase.ID)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *SignSuite) TestConcurrentSignsProduceOneDocument() {
	d := s.ready(decision.TypeProceduralOrder)

	var (
		mu        sync.Mutex
		succeeded int
	)
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := s.service.Sign(context.Background(), d.ID, s.judge)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			}
			if dErrors.HasCode(err, dErrors.CodeInvalidState) || dErrors.HasCode(err, dErrors.CodeConflict) {
				return nil
			}
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal(1, succeeded)

	events := s.queryAudit(audit.EventDecisionSigned)
	s.Len(events, 1)
}

func (s *SignSuite) TestVerifyIntegrityAfterSign() {
	d := s.ready(decision.TypeProceduralOrder)
	_, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)

	result, err := s.service.VerifyIntegrity(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	s.True(result.Match)
	s.Equal(result.StoredHash, result.ComputedHash)
	s.NotEmpty(result.SignerPseudonym)
}

func (s *SignSuite) TestVerifyIntegrityDetectsTamperedArtifact() {
	d := s.ready(decision.TypeProceduralOrder)
	signed, err := s.service.Sign(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)

	doc, err := s.decStore.FindDocument(context.Background(), *signed.DocumentID)
	s.Require().NoError(err)
	path := strings.TrimPrefix(doc.ArtifactURI, "file://")
	s.Require().NoError(os.Chmod(path, 0o640))
	s.Require().NoError(os.WriteFile(path, []byte("altered after signature"), 0o640))

	result, err := s.service.VerifyIntegrity(context.Background(), d.ID, s.judge)
	s.Require().NoError(err)
	s.False(result.Match)
	s.NotEqual(result.StoredHash, result.ComputedHash)

	events := s.queryAudit(audit.EventIntegrityChecked)
	s.Require().Len(events, 1)
	s.Equal(audit.SeverityHigh, events[0].Severity)
	s.Equal("false", events[0].Details["match"])
}

func (s *SignSuite) TestVerifyIntegrityRequiresSignedDocument() {
	d := s.draft(longBody)
	_, err := s.service.VerifyIntegrity(context.Background(), d.ID, s.judge)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func TestSignSuite(t *testing.T) {
	suite.Run(t, new(SignSuite))
}
