package memory

import (
	"context"
	"sort"
	"sync"

	"curia/internal/audit"
)

// InMemoryStore keeps audit events in a slice. Used by unit tests and local
// development; the postgres store is the production sink.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Seq = int64(len(s.events)) + 1
	s.events = append(s.events, cloneEvent(event))
	return nil
}

func (s *InMemoryStore) Last(_ context.Context) (*audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.events) == 0 {
		return nil, nil
	}
	last := cloneEvent(s.events[len(s.events)-1])
	return &last, nil
}

func (s *InMemoryStore) List(_ context.Context, filter audit.Filter, page audit.Page) ([]audit.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Event
	for _, event := range s.events {
		if matches(event, filter) {
			matched = append(matched, cloneEvent(event))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Seq > matched[j].Seq
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}
	return matched[page.Offset:end], total, nil
}

func (s *InMemoryStore) ListRange(_ context.Context, fromSeq, toSeq int64) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, event := range s.events {
		if event.Seq >= fromSeq && event.Seq <= toSeq {
			out = append(out, cloneEvent(event))
		}
	}
	return out, nil
}

// Tamper overwrites a stored row in place. Only verification tests use this;
// the audit.Store interface deliberately has no mutation method.
func (s *InMemoryStore) Tamper(seq int64, mutate func(*audit.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].Seq == seq {
			mutate(&s.events[i])
			return
		}
	}
}

func matches(event audit.Event, filter audit.Filter) bool {
	if !filter.ActorID.IsNil() && event.ActorID != filter.ActorID {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Severity != "" && event.Severity != filter.Severity {
		return false
	}
	if !filter.From.IsZero() && event.Timestamp.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && event.Timestamp.After(filter.To) {
		return false
	}
	return true
}

func cloneEvent(event audit.Event) audit.Event {
	if event.Details != nil {
		details := make(map[string]string, len(event.Details))
		for k, v := range event.Details {
			details[k] = v
		}
		event.Details = details
	}
	return event
}
