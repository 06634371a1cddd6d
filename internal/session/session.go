package session

import "sync"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role    string
	Content string
}

// Store maps a user identifier to its bounded conversation history.
// Histories live in memory for the lifetime of the process.
type Store struct {
	mu         sync.RWMutex
	histories  map[int64][]Turn
	userLocks  map[int64]*sync.Mutex
	maxHistory int
}

// NewStore creates a store that trims committed histories to the last
// maxHistory turns.
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 6
	}
	return &Store{
		histories:  make(map[int64][]Turn),
		userLocks:  make(map[int64]*sync.Mutex),
		maxHistory: maxHistory,
	}
}

// MaxHistory returns the trim bound applied on Commit.
func (s *Store) MaxHistory() int {
	return s.maxHistory
}

// GetOrCreate returns a snapshot of the user's history, creating an empty
// session on first sight. The returned slice is a copy; mutating it does
// not affect the store until Commit.
func (s *Store) GetOrCreate(userID int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.histories[userID]
	if !ok {
		s.histories[userID] = nil
		return nil
	}
	snapshot := make([]Turn, len(history))
	copy(snapshot, history)
	return snapshot
}

// Commit replaces the user's stored history with the given turns, trimmed
// to the most recent maxHistory entries. It never fails.
func (s *Store) Commit(userID int64, history []Turn) {
	if len(history) > s.maxHistory {
		history = history[len(history)-s.maxHistory:]
	}
	stored := make([]Turn, len(history))
	copy(stored, history)
	s.mu.Lock()
	s.histories[userID] = stored
	s.mu.Unlock()
}

// UserLock returns the mutex serializing the read-modify-commit cycle for
// one user. Concurrent updates for the same user must hold it across
// GetOrCreate and Commit to avoid lost updates.
func (s *Store) UserLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// Len returns the number of sessions the store has seen.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}
