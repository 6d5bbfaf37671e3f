package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of supervisor action recorded.
type EventType string

const (
	EventUpdate EventType = "update"
	EventStart  EventType = "start"
	EventStop   EventType = "stop"
)

// Record is one finished orchestration run.
type Record struct {
	RunID         string    `json:"run_id"`
	Forced        bool      `json:"forced"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Outcome       string    `json:"outcome"`
	Message       string    `json:"message"`
	LocalVersion  string    `json:"local_version,omitempty"`
	RemoteVersion string    `json:"remote_version,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
}

// Duration of the run.
func (r Record) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Event represents a run to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that supports it.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
