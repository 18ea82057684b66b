package store

import (
	"context"
	"sync"
	"time"

	"curia/internal/casefile"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
)

// InMemoryStore keeps cases in a map. Unit tests and local development only.
type InMemoryStore struct {
	mu        sync.RWMutex
	cases     map[domain.CaseID]casefile.Case
	timelines map[domain.CaseID][]casefile.TimelineEntry

	// FailTimeline forces AppendTimeline to fail, letting signing tests
	// exercise the best-effort timeline sub-step.
	FailTimeline bool
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		cases:     make(map[domain.CaseID]casefile.Case),
		timelines: make(map[domain.CaseID][]casefile.TimelineEntry),
	}
}

func (s *InMemoryStore) Create(_ context.Context, c *casefile.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return sentinel.ErrConflict
	}
	s.cases[c.ID] = *c
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.CaseID) (*casefile.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *InMemoryStore) Reassign(_ context.Context, id domain.CaseID, judgeID domain.SubjectID, judgePseudonym string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.AssignedJudgeID = judgeID
	c.AssignedJudgePseudonym = judgePseudonym
	c.UpdatedAt = time.Now()
	s.cases[id] = c
	return nil
}

func (s *InMemoryStore) UpdateState(_ context.Context, id domain.CaseID, state casefile.ProceduralState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.State = state
	c.UpdatedAt = time.Now()
	s.cases[id] = c
	return nil
}

func (s *InMemoryStore) AppendTimeline(_ context.Context, entry casefile.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTimeline {
		return sentinel.ErrUnavailable
	}
	s.timelines[entry.CaseID] = append(s.timelines[entry.CaseID], entry)
	return nil
}

func (s *InMemoryStore) ListTimeline(_ context.Context, id domain.CaseID) ([]casefile.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]casefile.TimelineEntry{}, s.timelines[id]...), nil
}
