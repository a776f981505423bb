package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEmitSyncDeliversToAllHandlers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	for _, name := range []string{"a", "b", "c"} {
		bus.Subscribe(EventChunkDecoded, name, func(ctx context.Context, e Event) error {
			calls.Add(1)
			return nil
		})
	}

	err := bus.EmitSync(context.Background(), Event{
		Type:    EventChunkDecoded,
		Source:  "test",
		Payload: ChunkPayload{SessionID: 1, X: 10, Z: 20},
	})
	if err != nil {
		t.Fatalf("EmitSync: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestEmitSyncReturnsHandlerError(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	wantErr := errors.New("publish failed")
	bus.Subscribe(EventSessionStarted, "failing", func(ctx context.Context, e Event) error {
		return wantErr
	})

	err := bus.EmitSync(context.Background(), Event{Type: EventSessionStarted})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestEmitAsyncDelivers(t *testing.T) {
	bus := NewEventBus()

	done := make(chan struct{})
	bus.Subscribe(EventSessionClosed, "waiter", func(ctx context.Context, e Event) error {
		close(done)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventSessionClosed})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
	bus.Stop()
}

func TestEmitOnlyMatchingType(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventChunkDecoded, "chunks", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	bus.EmitSync(context.Background(), Event{Type: EventChunkUnloaded})
	if calls.Load() != 0 {
		t.Errorf("handler ran for a different event type")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	bus.Subscribe(EventPhaseChanged, "keep", func(ctx context.Context, e Event) error { return nil })
	bus.Subscribe(EventPhaseChanged, "drop", func(ctx context.Context, e Event) error { return nil })
	if got := bus.HandlerCount(EventPhaseChanged); got != 2 {
		t.Fatalf("HandlerCount = %d, want 2", got)
	}

	bus.Unsubscribe(EventPhaseChanged, "drop")
	if got := bus.HandlerCount(EventPhaseChanged); got != 1 {
		t.Errorf("HandlerCount = %d, want 1", got)
	}
}

func TestStoppedBusDropsEvents(t *testing.T) {
	bus := NewEventBus()

	var calls atomic.Int32
	bus.Subscribe(EventShutdown, "counter", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	bus.Stop()

	select {
	case <-bus.StopCh():
	default:
		t.Error("StopCh not closed after Stop")
	}

	bus.Emit(context.Background(), Event{Type: EventShutdown})
	bus.EmitSync(context.Background(), Event{Type: EventShutdown})
	if calls.Load() != 0 {
		t.Errorf("handlers ran after Stop")
	}
}

func TestPanickingHandlerDoesNotPoisonBus(t *testing.T) {
	bus := NewEventBus()
	defer bus.Stop()

	var calls atomic.Int32
	bus.Subscribe(EventConfigChanged, "panics", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe(EventConfigChanged, "survives", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return nil
	})

	bus.EmitSync(context.Background(), Event{Type: EventConfigChanged})
	if calls.Load() != 1 {
		t.Errorf("surviving handler calls = %d, want 1", calls.Load())
	}
}

func TestSessionStatusString(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   string
	}{
		{SessionStatusHandshaking, "handshaking"},
		{SessionStatusPlaying, "playing"},
		{SessionStatusBlind, "blind"},
		{SessionStatusClosed, "closed"},
		{SessionStatus(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
