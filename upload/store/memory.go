package store

import "sync"

// InMemory keeps progress in process memory. Progress does not survive a
// restart; it is meant for tests and for callers that only need pause and
// continue within a single run.
type InMemory struct {
	records map[string][]int
	mu      sync.Mutex
}

// NewInMemory ...
func NewInMemory() *InMemory {
	return &InMemory{records: map[string][]int{}}
}

// Load ...
func (s *InMemory) Load(key string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices := make([]int, len(s.records[key]))
	copy(indices, s.records[key])
	return indices, nil
}

// Save ...
func (s *InMemory) Save(key string, indices []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := make([]int, len(indices))
	copy(record, indices)
	s.records[key] = record
	return nil
}

// Clear ...
func (s *InMemory) Clear(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}
