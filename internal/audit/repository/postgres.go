package repository

import (
	"context"
	"database/sql"

	"attex-trustcore/internal/audit/domain"
)

// PostgresRepository persists audit log entries to Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts one audit log entry.
func (r *PostgresRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, session_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.SessionID, entry.Action, entry.Detail, entry.CreatedAt,
	)
	return err
}
