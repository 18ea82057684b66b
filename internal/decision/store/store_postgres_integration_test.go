//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"curia/internal/casefile"
	casestore "curia/internal/casefile/store"
	"curia/internal/decision"
	"curia/internal/decision/store"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
	"curia/pkg/testutil/containers"
)

const schema = `
CREATE TABLE cases (
    id                UUID PRIMARY KEY,
    assigned_judge_id UUID NOT NULL,
    judge_pseudonym   TEXT NOT NULL,
    registered_by     UUID NOT NULL,
    state             TEXT NOT NULL,
    court_unit        TEXT NOT NULL,
    subject_matter    TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE case_timeline (
    id          UUID PRIMARY KEY,
    case_id     UUID NOT NULL REFERENCES cases(id),
    occurred_at TIMESTAMPTZ NOT NULL,
    kind        TEXT NOT NULL,
    description TEXT NOT NULL,
    decision_id UUID
);

CREATE TABLE decisions (
    id          UUID PRIMARY KEY,
    case_id     UUID NOT NULL REFERENCES cases(id),
    author_id   UUID NOT NULL,
    type        TEXT NOT NULL,
    title       TEXT NOT NULL,
    body        TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL,
    version     INT NOT NULL,
    document_id UUID,
    signed_at   TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE decision_history (
    id          UUID PRIMARY KEY,
    decision_id UUID NOT NULL REFERENCES decisions(id) ON DELETE CASCADE,
    version     INT NOT NULL,
    title       TEXT NOT NULL,
    body        TEXT NOT NULL,
    state       TEXT NOT NULL,
    changed_by  UUID NOT NULL,
    changed_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE decision_documents (
    id               UUID PRIMARY KEY,
    decision_id      UUID NOT NULL UNIQUE REFERENCES decisions(id),
    case_id          UUID NOT NULL REFERENCES cases(id),
    signed_by        UUID NOT NULL,
    signer_pseudonym TEXT NOT NULL,
    content_hash     TEXT NOT NULL,
    signature_key_id TEXT NOT NULL,
    signature_alg    TEXT NOT NULL,
    signature        BYTEA NOT NULL,
    artifact_uri     TEXT NOT NULL,
    signed_at        TIMESTAMPTZ NOT NULL
);
`

type PostgresDecisionSuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	store     *store.PostgresStore
	caseStore *casestore.PostgresStore

	judgeID domain.SubjectID
	kase    *casefile.Case
}

func TestPostgresDecisionSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDecisionSuite))
}

func (s *PostgresDecisionSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), schema)
	s.caseStore = casestore.NewPostgres(s.postgres.DB)
	s.store = store.NewPostgres(s.postgres.DB, s.caseStore)
}

func (s *PostgresDecisionSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx,
		"decision_documents", "decision_history", "decisions", "case_timeline", "cases"))

	s.judgeID = domain.NewSubjectID()
	kase, err := casefile.NewCase(domain.NewCaseID(), s.judgeID, "J-TESTPSEUDONYM",
		domain.NewSubjectID(), "District 4", "civil claim", time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.caseStore.Create(ctx, kase))
	s.kase = kase
}

func (s *PostgresDecisionSuite) createDecision(state decision.State) *decision.Decision {
	d, err := decision.NewDecision(domain.NewDecisionID(), s.kase.ID, s.judgeID,
		decision.TypeFinalRuling, "Judgment", "The court finds as follows.", time.Now().UTC())
	s.Require().NoError(err)
	d.State = state
	s.Require().NoError(s.store.Create(context.Background(), d))
	return d
}

func (s *PostgresDecisionSuite) signCommit(d *decision.Decision) decision.SignCommit {
	now := time.Now().UTC()
	adjudicated := casefile.StateAdjudicated
	timeline := casefile.NewTimelineEntry(s.kase.ID, "decision_signed", "final ruling signed", &d.ID, now)
	return decision.SignCommit{
		DecisionID:      d.ID,
		ExpectedVersion: d.Version,
		ExpectedAuthor:  d.AuthorID,
		Document: &decision.Document{
			ID:              domain.NewDocumentID(),
			DecisionID:      d.ID,
			CaseID:          s.kase.ID,
			SignedBy:        s.judgeID,
			SignerPseudonym: "J-TESTPSEUDONYM",
			ContentHash:     "deadbeef",
			SignatureKeyID:  "key-1",
			SignatureAlg:    "Ed25519",
			Signature:       []byte("sig"),
			ArtifactURI:     "file:///tmp/doc.txt",
			SignedAt:        now,
		},
		SignedAt:  now,
		CaseState: &adjudicated,
		Timeline:  &timeline,
	}
}

func (s *PostgresDecisionSuite) TestUpdateGuardsVersion() {
	ctx := context.Background()
	d := s.createDecision(decision.StateDraft)

	snapshot := decision.HistoryEntry{
		ID:         uuid.New(),
		DecisionID: d.ID,
		Version:    d.Version,
		Title:      d.Title,
		Body:       d.Body,
		State:      d.State,
		ChangedBy:  s.judgeID,
		ChangedAt:  time.Now().UTC(),
	}
	updated := *d
	updated.Body = "Amended findings."
	updated.Version = 2
	updated.UpdatedAt = time.Now().UTC()
	s.Require().NoError(s.store.Update(ctx, &updated, 1, snapshot))

	// A second update against the already-consumed version must not apply.
	stale := updated
	stale.Version = 3
	err := s.store.Update(ctx, &stale, 1, snapshot)
	s.Require().ErrorIs(err, sentinel.ErrStale)

	found, err := s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(2, found.Version)
	s.Equal("Amended findings.", found.Body)

	history, err := s.store.ListHistory(ctx, d.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(1, history[0].Version)
}

func (s *PostgresDecisionSuite) TestCommitSignatureLifecycle() {
	ctx := context.Background()
	d := s.createDecision(decision.StateReadyToSign)
	commit := s.signCommit(d)

	s.Require().NoError(s.store.CommitSignature(ctx, commit))

	signed, err := s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(decision.StateSigned, signed.State)
	s.Require().NotNil(signed.DocumentID)
	s.Equal(commit.Document.ID, *signed.DocumentID)

	doc, err := s.store.FindDocument(ctx, commit.Document.ID)
	s.Require().NoError(err)
	s.Equal("J-TESTPSEUDONYM", doc.SignerPseudonym)
	s.Equal([]byte("sig"), doc.Signature)

	kase, err := s.caseStore.FindByID(ctx, s.kase.ID)
	s.Require().NoError(err)
	s.Equal(casefile.StateAdjudicated, kase.State)

	entries, err := s.caseStore.ListTimeline(ctx, s.kase.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("decision_signed", entries[0].Kind)

	// Re-signing a finalized decision must fail before any write.
	err = s.store.CommitSignature(ctx, s.signCommit(d))
	s.Require().ErrorIs(err, sentinel.ErrImmutable)
}

func (s *PostgresDecisionSuite) TestCommitSignatureSurvivesTimelineFailure() {
	ctx := context.Background()
	d := s.createDecision(decision.StateReadyToSign)
	commit := s.signCommit(d)

	// Occupying the timeline row's primary key makes the insert fail inside
	// its savepoint; the signing commit itself must still land.
	clash := *commit.Timeline
	clash.Kind = "hearing_scheduled"
	s.Require().NoError(s.caseStore.AppendTimeline(ctx, clash))

	s.Require().NoError(s.store.CommitSignature(ctx, commit))

	signed, err := s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(decision.StateSigned, signed.State)

	kase, err := s.caseStore.FindByID(ctx, s.kase.ID)
	s.Require().NoError(err)
	s.Equal(casefile.StateAdjudicated, kase.State)

	entries, err := s.caseStore.ListTimeline(ctx, s.kase.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("hearing_scheduled", entries[0].Kind)
}

func (s *PostgresDecisionSuite) TestCommitSignatureStaleExpectations() {
	ctx := context.Background()
	d := s.createDecision(decision.StateReadyToSign)

	commit := s.signCommit(d)
	commit.ExpectedVersion = d.Version + 1
	s.Require().ErrorIs(s.store.CommitSignature(ctx, commit), sentinel.ErrStale)

	missing := s.signCommit(d)
	missing.DecisionID = domain.NewDecisionID()
	s.Require().ErrorIs(s.store.CommitSignature(ctx, missing), sentinel.ErrNotFound)
}
