// Package telemetry emits session lifecycle events to an event bus,
// best-effort. Callers log and ignore failures.
package telemetry

import (
	"context"

	"attex-trustcore/internal/telemetry/domain"
)

// EventEmitter emits lifecycle events (e.g. to Kafka).
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}
