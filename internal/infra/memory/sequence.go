package memory

import "sync"

// Sequence is an in-process implementation of app.Sequence.
type Sequence struct {
	mu      sync.Mutex
	current map[string]int64
}

func NewSequence() *Sequence {
	return &Sequence{current: make(map[string]int64)}
}

func (s *Sequence) Next(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[name]++
	return s.current[name], nil
}
