package audit

import (
	"context"
	"slices"
	"sync"
)

// MemorySink keeps entries in process. Used by the memory deployment and tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a copy of everything written so far, in write order.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// ByAction returns the entries with the given action.
func (s *MemorySink) ByAction(a Action) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Action == a {
			out = append(out, e)
		}
	}
	return out
}
