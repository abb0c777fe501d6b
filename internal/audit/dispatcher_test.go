package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDispatcherDeliversToSink(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(8, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "login", UserID: "u1", Success: true})

	select {
	case got := <-sink.Events():
		if got.EventType != "login" || got.UserID != "u1" || !got.Success {
			t.Fatalf("event mismatch: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// A sink that never drains; only the buffer absorbs events.
	blocked := make(chan struct{})
	sink := sinkFunc(func(ctx context.Context, event Event) {
		<-blocked
	})
	d := NewDispatcher(1, sink)
	defer func() {
		close(blocked)
		d.Close()
	}()

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops once the buffer filled")
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(16, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "logout"})
	}
	d.Close()

	delivered := len(sink.Events())
	if delivered != 5 {
		t.Fatalf("delivered = %d, want 5", delivered)
	}
}

func TestEmitAfterCloseIsSafe(t *testing.T) {
	d := NewDispatcher(1, NoOpSink{})
	d.Close()
	d.Emit(context.Background(), Event{EventType: "login"})

	var nilDispatcher *Dispatcher
	nilDispatcher.Emit(context.Background(), Event{EventType: "login"})
	nilDispatcher.Close()
}

func TestJSONWriterSinkShape(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		EventType: "sudo_granted",
		UserID:    "u1",
		Success:   true,
		Metadata:  map[string]string{"risk": "LOW"},
	})

	var got Event
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventType != "sudo_granted" || got.Metadata["risk"] != "LOW" {
		t.Fatalf("event mismatch: %+v", got)
	}
}

type sinkFunc func(ctx context.Context, event Event)

func (f sinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }
