package store

import (
	"context"
	"sync"
	"time"

	"curia/internal/subject"
	"curia/pkg/domain"
	"curia/pkg/platform/sentinel"
)

// InMemoryStore keeps officials in a map. Unit tests and local development only.
type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[domain.SubjectID]subject.Subject
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[domain.SubjectID]subject.Subject)}
}

func (s *InMemoryStore) Create(_ context.Context, sub *subject.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subjects[sub.ID]; exists {
		return sentinel.ErrConflict
	}
	s.subjects[sub.ID] = *sub
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.SubjectID) (*subject.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subjects[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &sub, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id domain.SubjectID, status subject.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subjects[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	sub.Status = status
	sub.UpdatedAt = time.Now()
	s.subjects[id] = sub
	return nil
}
