package tracker

import "github.com/kirillkom/extraction-tracker/internal/core/domain"

// store is the single source of truth for per-resource progress. It is not
// safe for concurrent use on its own; the Tracker mutex guards every call.
// No stage-transition validation happens here: the registry feeds events in
// transport order and the store keeps last-write-wins semantics.
type store struct {
	entries map[string]domain.ProcessingProgress

	// completed marks resources whose stream close should be treated as
	// benign (terminal event already applied, or abort already requested).
	completed map[string]struct{}
}

func newStore() *store {
	return &store{
		entries:   make(map[string]domain.ProcessingProgress),
		completed: make(map[string]struct{}),
	}
}

func (s *store) set(entry domain.ProcessingProgress) {
	s.entries[entry.ResourceID] = entry
}

func (s *store) get(resourceID string) (domain.ProcessingProgress, bool) {
	entry, ok := s.entries[resourceID]
	return entry, ok
}

func (s *store) snapshot() domain.Snapshot {
	return domain.Snapshot(s.entries).Clone()
}

// remove deletes the entry and its completed marker.
func (s *store) remove(resourceID string) bool {
	_, existed := s.entries[resourceID]
	delete(s.entries, resourceID)
	delete(s.completed, resourceID)
	return existed
}

func (s *store) markCompleted(resourceID string) {
	s.completed[resourceID] = struct{}{}
}

func (s *store) clearCompleted(resourceID string) {
	delete(s.completed, resourceID)
}

func (s *store) isCompleted(resourceID string) bool {
	_, ok := s.completed[resourceID]
	return ok
}

func (s *store) clear() {
	s.entries = make(map[string]domain.ProcessingProgress)
	s.completed = make(map[string]struct{})
}
