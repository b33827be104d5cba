// Package producer emits lifecycle events to Kafka.
package producer

import (
	"context"

	"attex-trustcore/internal/telemetry/domain"
)

// Producer emits lifecycle events. Callers use it best-effort: log and ignore
// errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; use
	// telemetry.EmitAsync from request paths.
	Emit(ctx context.Context, event *domain.Event) error
	// Close releases resources. Safe to call more than once.
	Close() error
}
