package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"attex-trustcore/internal/session/domain"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over a Postgres database. The
// compare-and-transition guard is a single conditional UPDATE; no session
// lock is held beyond one statement.
type PostgresRepository struct {
	db   *sql.DB
	nowF func() time.Time
}

// NewPostgresRepository returns a session repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, nowF: func() time.Time { return time.Now().UTC() }}
}

// Create persists the session. Fails with ErrDuplicateID on an existing id.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	scope, err := json.Marshal(s.AttestationScope)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, state, purpose, attestation_scope, attributes, failure_reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, NULL, NULL, $5, $6)`,
		s.ID, string(s.State), s.Purpose, scope, s.CreatedAt, s.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return storageErr(err)
	}
	return nil
}

// GetByID returns the session with expiry coercion applied.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s, err := r.selectSession(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	s.State = s.EffectiveState(r.nowF())
	return s, nil
}

// CompareAndTransition performs the conditional state update. The WHERE
// clause carries the whole guard: current state must equal expected and the
// deadline must not have passed. A zero-row update is disambiguated with a
// follow-up read: missing row is ErrNotFound, anything else lost the race.
func (r *PostgresRepository) CompareAndTransition(ctx context.Context, id string, expected, next domain.State, mutate func(*domain.Session) error) (*domain.Session, error) {
	if !domain.CanTransition(expected, next) {
		return nil, ErrInvalidTransition
	}
	s, err := r.selectSession(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	now := r.nowF()
	if s.EffectiveState(now) != expected {
		return nil, ErrConflict
	}
	s.State = next
	if mutate != nil {
		if err := mutate(s); err != nil {
			return nil, err
		}
	}
	var attrs any
	if s.Attributes != nil {
		attrs, err = json.Marshal(s.Attributes)
		if err != nil {
			return nil, err
		}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET state = $1, attributes = COALESCE($2, attributes), failure_reason = NULLIF($3, '')
		WHERE id = $4 AND state = $5 AND expires_at > $6`,
		string(next), attrs, s.FailureReason, id, string(expected), now,
	)
	if err != nil {
		return nil, storageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, storageErr(err)
	}
	if n == 0 {
		if _, err := r.selectSession(ctx, r.db, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return s, nil
}

// ConsumeFetch records the single-use fetch for the session. The primary key
// on session_id makes a second consumption fail.
func (r *PostgresRepository) ConsumeFetch(ctx context.Context, sessionID, nonceHash string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO consumed_fetches (session_id, nonce_hash, consumed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING`,
		sessionID, nonceHash, r.nowF(),
	)
	if err != nil {
		return storageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(err)
	}
	if n == 0 {
		return ErrFetchConsumed
	}
	return nil
}

// DeleteExpired removes sessions whose deadline passed more than retention ago.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := r.nowF().Add(-retention)
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM consumed_fetches WHERE session_id IN (SELECT id FROM sessions WHERE expires_at < $1)`, cutoff,
	); err != nil {
		return 0, storageErr(err)
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, storageErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PostgresRepository) selectSession(ctx context.Context, q querier, id string) (*domain.Session, error) {
	var (
		s         domain.Session
		stateCol  string
		scopeCol  []byte
		attrsCol  sql.Null[[]byte]
		reasonCol sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, state, purpose, attestation_scope, attributes, failure_reason, created_at, expires_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &stateCol, &s.Purpose, &scopeCol, &attrsCol, &reasonCol, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr(err)
	}
	s.State, err = domain.ParseState(stateCol)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(scopeCol, &s.AttestationScope); err != nil {
		return nil, err
	}
	if attrsCol.Valid {
		if err := json.Unmarshal(attrsCol.V, &s.Attributes); err != nil {
			return nil, err
		}
	}
	if reasonCol.Valid {
		s.FailureReason = reasonCol.String
	}
	return &s, nil
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
