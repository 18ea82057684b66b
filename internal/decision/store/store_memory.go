package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"curia/internal/casefile"
	"curia/internal/decision"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
)

// CaseMutator is the slice of the case store the signing commit touches.
type CaseMutator interface {
	UpdateState(ctx context.Context, id domain.CaseID, state casefile.ProceduralState) error
	AppendTimeline(ctx context.Context, entry casefile.TimelineEntry) error
}

// InMemoryStore keeps decisions in maps. Unit tests and local development
// only. CommitSignature mirrors the relational transaction: validations and
// fallible steps run before any mutation, so a failed commit leaves no
// partial state behind.
type InMemoryStore struct {
	mu        sync.RWMutex
	decisions map[domain.DecisionID]decision.Decision
	history   map[domain.DecisionID][]decision.HistoryEntry
	documents map[domain.DocumentID]decision.Document
	cases     CaseMutator

	// FailCommit forces CommitSignature to fail before mutating anything,
	// letting tests assert that a failed signing commit changes nothing.
	FailCommit bool
}

func NewInMemory(cases CaseMutator) *InMemoryStore {
	return &InMemoryStore{
		decisions: make(map[domain.DecisionID]decision.Decision),
		history:   make(map[domain.DecisionID][]decision.HistoryEntry),
		documents: make(map[domain.DocumentID]decision.Document),
		cases:     cases,
	}
}

func (s *InMemoryStore) Create(_ context.Context, d *decision.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.decisions[d.ID]; exists {
		return sentinel.ErrConflict
	}
	s.decisions[d.ID] = *d
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.DecisionID) (*decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &d, nil
}

func (s *InMemoryStore) ListByCase(_ context.Context, caseID domain.CaseID) ([]decision.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []decision.Decision
	for _, d := range s.decisions {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, d *decision.Decision, expectedVersion int, history decision.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.decisions[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion || current.State != decision.StateDraft {
		return sentinel.ErrStale
	}
	s.decisions[d.ID] = *d
	s.history[d.ID] = append(s.history[d.ID], history)
	return nil
}

func (s *InMemoryStore) Transition(_ context.Context, id domain.DecisionID, from, to decision.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if d.State != from {
		return sentinel.ErrStale
	}
	d.State = to
	d.UpdatedAt = time.Now()
	s.decisions[id] = d
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.DecisionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.decisions, id)
	delete(s.history, id)
	return nil
}

func (s *InMemoryStore) ListHistory(_ context.Context, id domain.DecisionID) ([]decision.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]decision.HistoryEntry{}, s.history[id]...), nil
}

func (s *InMemoryStore) CommitSignature(ctx context.Context, commit decision.SignCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[commit.DecisionID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if d.State == decision.StateSigned || d.State == decision.StateVoided {
		return sentinel.ErrImmutable
	}
	if d.State != decision.StateReadyToSign || d.Version != commit.ExpectedVersion || d.AuthorID != commit.ExpectedAuthor {
		return sentinel.ErrStale
	}
	if s.FailCommit {
		return errors.New("simulated commit failure")
	}

	if commit.CaseState != nil {
		if err := s.cases.UpdateState(ctx, d.CaseID, *commit.CaseState); err != nil {
			return err
		}
	}

	s.documents[commit.Document.ID] = *commit.Document
	d.State = decision.StateSigned
	docID := commit.Document.ID
	d.DocumentID = &docID
	signedAt := commit.SignedAt
	d.SignedAt = &signedAt
	d.UpdatedAt = commit.SignedAt
	s.decisions[commit.DecisionID] = d

	if commit.Timeline != nil {
		// Best effort, matching the relational savepoint sub-step.
		_ = s.cases.AppendTimeline(ctx, *commit.Timeline)
	}
	return nil
}

func (s *InMemoryStore) FindDocument(_ context.Context, id domain.DocumentID) (*decision.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &doc, nil
}
