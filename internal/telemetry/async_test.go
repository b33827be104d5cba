package telemetry

import (
	"context"
	"testing"
	"time"

	"attex-trustcore/internal/telemetry/domain"
)

type channelEmitter struct {
	events chan *domain.Event
}

func (e *channelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	e.events <- event
	return nil
}

func TestEmitAsync(t *testing.T) {
	emitter := &channelEmitter{events: make(chan *domain.Event, 1)}
	event := &domain.Event{SessionID: "sess-1", EventType: domain.EventCompleted, Source: "trustcore"}

	EmitAsync(emitter, event)

	select {
	case got := <-emitter.events:
		if got.SessionID != "sess-1" || got.EventType != domain.EventCompleted {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was never emitted")
	}
}

func TestEmitAsync_NilSafe(t *testing.T) {
	EmitAsync(nil, &domain.Event{SessionID: "sess-1"})
	EmitAsync(&channelEmitter{events: make(chan *domain.Event, 1)}, nil)
}
