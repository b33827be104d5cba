package repository

import (
	"context"
	"sync"
	"time"

	"attex-trustcore/internal/session/domain"
)

// MemoryRepository is an in-memory Repository implementation for development
// mode and tests. It honors the same compare-and-transition contract as the
// Postgres repository; the mutex stands in for the conditional UPDATE.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	consumed map[string]string // session id → nonce hash
	nowF     func() time.Time
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
		consumed: make(map[string]string),
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the repository clock. Test use only.
func (r *MemoryRepository) SetClock(nowF func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowF = nowF
}

// Create persists the session. Fails with ErrDuplicateID on an existing id.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return ErrDuplicateID
	}
	cp := cloneSession(s)
	r.sessions[s.ID] = cp
	return nil
}

// GetByID returns a copy of the session with expiry coercion applied.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := cloneSession(s)
	cp.State = cp.EffectiveState(r.nowF())
	return cp, nil
}

// CompareAndTransition applies the conditional update under the lock.
func (r *MemoryRepository) CompareAndTransition(ctx context.Context, id string, expected, next domain.State, mutate func(*domain.Session) error) (*domain.Session, error) {
	if !domain.CanTransition(expected, next) {
		return nil, ErrInvalidTransition
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.EffectiveState(r.nowF()) != expected {
		return nil, ErrConflict
	}
	cp := cloneSession(s)
	cp.State = next
	if mutate != nil {
		if err := mutate(cp); err != nil {
			return nil, err
		}
	}
	r.sessions[id] = cp
	return cloneSession(cp), nil
}

// ConsumeFetch records the single-use fetch for the session.
func (r *MemoryRepository) ConsumeFetch(ctx context.Context, sessionID, nonceHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.consumed[sessionID]; ok {
		return ErrFetchConsumed
	}
	r.consumed[sessionID] = nonceHash
	return nil
}

// DeleteExpired removes sessions whose deadline passed more than retention ago.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.nowF().Add(-retention)
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.sessions, id)
			delete(r.consumed, id)
			n++
		}
	}
	return n, nil
}

func cloneSession(s *domain.Session) *domain.Session {
	cp := *s
	if s.AttestationScope != nil {
		cp.AttestationScope = append([]string(nil), s.AttestationScope...)
	}
	if s.Attributes != nil {
		cp.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}
