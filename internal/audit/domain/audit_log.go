package domain

import "time"

// AuditLog is one recorded lifecycle action against a session.
type AuditLog struct {
	ID        string
	SessionID string
	Action    string
	Detail    string
	CreatedAt time.Time
}
