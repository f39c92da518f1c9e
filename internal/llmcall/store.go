package llmcall

import (
	"sync"
	"time"
)

// DefaultMaxCalls bounds the in-memory history when no limit is configured.
const DefaultMaxCalls = 256

// Store keeps a bounded in-memory history of LLM calls, newest first.
// Old entries are evicted once the capacity is reached.
type Store struct {
	mu    sync.RWMutex
	calls []Call // ring buffer, calls[head] is the oldest slot in use
	head  int
	size  int
	byID  map[string]struct{}
}

// NewStore creates a call store holding at most maxCalls entries.
func NewStore(maxCalls int) *Store {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	return &Store{
		calls: make([]Call, maxCalls),
		byID:  make(map[string]struct{}, maxCalls),
	}
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	Flow      string
	Target    string
	PromptKey string
	Provider  string
	Model     string
	After     *time.Time
	Before    *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// Add records a call, evicting the oldest entry when full.
func (s *Store) Add(call *Call) {
	if call == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size == len(s.calls) {
		delete(s.byID, s.calls[s.head].ID)
		s.calls[s.head] = *call
		s.head = (s.head + 1) % len(s.calls)
	} else {
		s.calls[(s.head+s.size)%len(s.calls)] = *call
		s.size++
	}
	s.byID[call.ID] = struct{}{}
}

// Get retrieves a single LLM call by ID. Returns nil when the call is
// unknown or already evicted.
func (s *Store) Get(id string) *Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.byID[id]; !ok {
		return nil
	}
	for i := 0; i < s.size; i++ {
		c := s.calls[(s.head+i)%len(s.calls)]
		if c.ID == id {
			out := c
			return &out
		}
	}
	return nil
}

// List retrieves LLM calls matching the filter, newest first.
func (s *Store) List(filter QueryFilter) []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Call, 0, s.size)
	// Walk from newest to oldest.
	for i := s.size - 1; i >= 0; i-- {
		c := s.calls[(s.head+i)%len(s.calls)]
		if !matches(c, filter) {
			continue
		}
		matched = append(matched, c)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []Call{}
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}

// Len returns the number of retained calls.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// CountByPromptKey returns call counts grouped by prompt key.
func (s *Store) CountByPromptKey() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for i := 0; i < s.size; i++ {
		counts[s.calls[(s.head+i)%len(s.calls)].PromptKey]++
	}
	return counts
}

func matches(c Call, f QueryFilter) bool {
	if f.Flow != "" && c.Flow != f.Flow {
		return false
	}
	if f.Target != "" && c.Target != f.Target {
		return false
	}
	if f.PromptKey != "" && c.PromptKey != f.PromptKey {
		return false
	}
	if f.Provider != "" && c.Provider != f.Provider {
		return false
	}
	if f.Model != "" && c.Model != f.Model {
		return false
	}
	if f.Success != nil && c.Success != *f.Success {
		return false
	}
	if f.After != nil && !c.Timestamp.After(*f.After) {
		return false
	}
	if f.Before != nil && !c.Timestamp.Before(*f.Before) {
		return false
	}
	return true
}
