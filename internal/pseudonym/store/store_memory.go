package store

import (
	"context"
	"sync"

	"curia/internal/pseudonym"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
)

// InMemoryStore keeps pseudonym mappings in maps. Unit tests and local
// development only.
type InMemoryStore struct {
	mu        sync.RWMutex
	bySubject map[domain.SubjectID]pseudonym.Mapping
	byCode    map[string]pseudonym.Mapping
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		bySubject: make(map[domain.SubjectID]pseudonym.Mapping),
		byCode:    make(map[string]pseudonym.Mapping),
	}
}

func (s *InMemoryStore) Create(_ context.Context, mapping pseudonym.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bySubject[mapping.SubjectID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byCode[mapping.Code]; exists {
		return sentinel.ErrConflict
	}
	s.bySubject[mapping.SubjectID] = mapping
	s.byCode[mapping.Code] = mapping
	return nil
}

func (s *InMemoryStore) FindBySubject(_ context.Context, subjectID domain.SubjectID) (*pseudonym.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.bySubject[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &mapping, nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*pseudonym.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mapping, ok := s.byCode[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &mapping, nil
}
