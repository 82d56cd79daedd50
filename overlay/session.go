package overlay

import (
	"sync"

	"github.com/marchfour/regionlens/compare"
)

// Session is the single source of truth for what is currently analyzed:
// the page identity (content identifier) and its last result. The
// coordinator is the only writer; the watcher and the status API read it.
type Session struct {
	mu       sync.RWMutex
	identity string
	result   *compare.Result
}

// Get returns the current identity and result.
func (s *Session) Get() (string, *compare.Result) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.result
}

// Identity returns just the current identity.
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Set replaces the current identity and result atomically.
func (s *Session) Set(identity string, result *compare.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.result = result
}

// Reset clears the session (navigation away from any product).
func (s *Session) Reset() {
	s.Set("", nil)
}
