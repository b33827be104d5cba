package repository

import (
	"context"
	"errors"
	"time"

	"attex-trustcore/internal/session/domain"
)

// Sentinel errors for the session store. Services match on these with
// errors.Is and never see driver errors directly.
var (
	// ErrNotFound is returned when no session exists for the given id.
	ErrNotFound = errors.New("session not found")
	// ErrConflict is returned when a compare-and-transition loses the race:
	// the session is no longer in the expected state, or it has expired.
	ErrConflict = errors.New("session state conflict")
	// ErrDuplicateID is returned when creating a session whose id already exists.
	ErrDuplicateID = errors.New("session id already exists")
	// ErrInvalidTransition is returned when the requested transition is not in
	// the lifecycle table, regardless of the stored state.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrFetchConsumed is returned when the single-use attribute fetch for a
	// session has already been consumed.
	ErrFetchConsumed = errors.New("attribute fetch already consumed")
	// ErrStorageUnavailable is returned for transient storage connectivity
	// failures. Callers may retry once with backoff; never for the errors above.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)

// Repository is the persistence contract for sessions. All state changes go
// through CompareAndTransition; there is no unconditional update.
type Repository interface {
	// Create persists a new session. The session must have ID, State, and
	// ExpiresAt set. Fails with ErrDuplicateID when the id is taken.
	Create(ctx context.Context, s *domain.Session) error

	// GetByID returns the session for id with expiry coercion applied: a
	// non-terminal session past its deadline reads as StateExpired. Fails with
	// ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// CompareAndTransition atomically moves the session from expected to next,
	// applying mutate to the freshly read record before the write. Exactly one
	// of N concurrent calls with the same expected state succeeds; the others
	// fail with ErrConflict. Writes against an expired session always fail
	// with ErrConflict. mutate may be nil.
	CompareAndTransition(ctx context.Context, id string, expected, next domain.State, mutate func(*domain.Session) error) (*domain.Session, error)

	// ConsumeFetch records the single-use attribute fetch for the session,
	// keeping the token nonce fingerprint for audit. Fails with
	// ErrFetchConsumed when a fetch was already recorded.
	ConsumeFetch(ctx context.Context, sessionID, nonceHash string) error

	// DeleteExpired removes sessions whose deadline passed more than retention
	// ago, along with their consumed-fetch records. Returns the number of
	// sessions removed.
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}
