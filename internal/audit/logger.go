// Package audit records session lifecycle actions for later review. Writes
// are best-effort: a failed audit write never fails the operation it audits.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"attex-trustcore/internal/audit/domain"
	auditrepo "attex-trustcore/internal/audit/repository"
)

// Actions recorded by the coordinator.
const (
	ActionSessionStarted     = "session.started"
	ActionRedirectIssued     = "session.redirect_issued"
	ActionAttributesReceived = "session.attributes_received"
	ActionAttributesFetched  = "session.attributes_fetched"
	ActionCommStarted        = "session.comm_started"
	ActionCompleted          = "session.completed"
	ActionFailed             = "session.failed"
	ActionDenied             = "session.denied"
)

// AuditLogger records a single lifecycle action against a session.
type AuditLogger interface {
	LogEvent(ctx context.Context, sessionID, action, detail string)
}

// Logger implements AuditLogger over the audit repository.
type Logger struct {
	repo auditrepo.Repository
}

// NewLogger returns an AuditLogger persisting to repo.
func NewLogger(repo auditrepo.Repository) *Logger {
	return &Logger{repo: repo}
}

// LogEvent writes one audit entry. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, sessionID, action, detail string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log %s for session %s: %v", action, sessionID, err)
	}
}
