package memory

import (
	"context"
	"slices"
	"sync"

	audit "labtrail/pkg/platform/audit"
)

// InMemoryStore keeps entries in append order. It is the default backend for
// local runs and tests. Entries are copied in and out, so neither writers nor
// readers can alter what was stored.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Clear drops every entry. Tests only.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// QueryByDay returns the entries whose timestamp falls within day, grouped by
// entity type and newest first within each group.
func (s *InMemoryStore) QueryByDay(_ context.Context, day audit.Day, entityTypes []string) (audit.Grouped, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := audit.Grouped{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !day.Contains(e.At) || !audit.MatchesType(e.EntityType, entityTypes) {
			continue
		}
		grouped[e.EntityType] = append(grouped[e.EntityType], e.Clone())
	}
	for _, entries := range grouped {
		sortNewestFirst(entries)
	}
	return grouped, nil
}

// QueryRecent returns at most limit entries across all entity types, newest
// first.
func (s *InMemoryStore) QueryRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	all := slices.Clone(s.entries)
	s.mu.RUnlock()

	sortNewestFirst(all)
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	for i := range all {
		all[i] = all[i].Clone()
	}
	return all, nil
}

// sortNewestFirst orders by timestamp descending. Ties keep their relative
// order, so iterating appends in reverse yields the later append first.
func sortNewestFirst(entries []audit.Entry) {
	slices.SortStableFunc(entries, func(a, b audit.Entry) int {
		return b.At.Compare(a.At)
	})
}
