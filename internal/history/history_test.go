package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memSink struct {
	events []Event
	err    error
	closed bool
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return m.err
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestRecord_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Record{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	if r.Duration() != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %v", r.Duration())
	}
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	ok := &memSink{}
	bad := &memSink{err: errors.New("down")}
	m := Multi{bad, ok}

	err := m.Send(context.Background(), Event{Type: EventUpdate, Record: Record{RunID: "r1"}})
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.events) != 1 || ok.events[0].Record.RunID != "r1" {
		t.Fatalf("healthy sink missed the event: %+v", ok.events)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ok.closed || !bad.closed {
		t.Fatal("expected all sinks closed")
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := (Multi{}).Send(context.Background(), Event{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
