package telemetry

import (
	"context"
	"log"
	"time"

	"attex-trustcore/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait before process shutdown so
// in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine so the caller is never blocked on the
// event bus. The goroutine uses a background context with its own timeout;
// request cancellation does not abort an in-flight emit. emitter and event
// may be nil, in which case nothing is started.
func EmitAsync(emitter EventEmitter, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
