package app

// SessionLocks reports how many per-session lock entries are live.
func SessionLocks(s *QuizService) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
