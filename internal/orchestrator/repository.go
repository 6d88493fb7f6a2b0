package orchestrator

import (
	"errors"
	"sort"
	"sync"
)

// Repository defines the concurrency-safe contract for tracking open
// sessions.
type Repository interface {
	// CreateSession stores a newly opened session. The id must be unused.
	CreateSession(s *Session) error

	// GetSession returns the open session with the given id.
	GetSession(id SessionID) (*Session, error)

	// CloseSession forgets the session. The removed session is returned so
	// the caller can release its pipeline.
	CloseSession(id SessionID) (*Session, error)

	// ListSessions returns the ids of all open sessions in sorted order.
	ListSessions() []SessionID

	// ActiveSessionCount returns the number of open sessions.
	// Used for metrics.
	ActiveSessionCount() int
}

var (
	// ErrSessionNotFound is returned for unknown or already closed sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when creating a session with a used id.
	ErrSessionExists = errors.New("session already exists")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
// It uses a Store for state; by default that is an InMemoryStore.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// CreateSession implements Repository.CreateSession.
func (r *InMemoryRepository) CreateSession(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.GetSession(s.ID); exists {
		return ErrSessionExists
	}
	r.store.SetSession(s)
	return nil
}

// GetSession implements Repository.GetSession.
func (r *InMemoryRepository) GetSession(id SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.store.GetSession(id)
	if !exists {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// CloseSession implements Repository.CloseSession.
func (r *InMemoryRepository) CloseSession(id SessionID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.store.GetSession(id)
	if !exists {
		return nil, ErrSessionNotFound
	}
	r.store.DeleteSession(id)
	return s, nil
}

// ListSessions implements Repository.ListSessions.
func (r *InMemoryRepository) ListSessions() []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.store.ListSessionIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.store.ListSessionIDs())
}
