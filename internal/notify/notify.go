// Package notify is the realtime hook of the mutation pipeline. After a
// command succeeds the bus builds an Event and hands it to a Notifier; the
// fan-out to connected clients lives outside this module.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/manav03panchal/tabula/internal/ids"
)

// EventType names what happened to the records.
type EventType string

const (
	EventRecordsCreated  EventType = "records.created"
	EventRecordsUpdated  EventType = "records.updated"
	EventRecordsDeleted  EventType = "records.deleted"
	EventRecordsRestored EventType = "records.restored"
)

// Event describes one committed mutation.
type Event struct {
	Type      EventType      `json:"type"`
	Command   string         `json:"command"`
	TableID   ids.TableID    `json:"tableId"`
	RecordIDs []ids.RecordID `json:"recordIds"`
	ActorID   ids.ActorID    `json:"actorId"`
	WindowID  ids.WindowID   `json:"windowId,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	// Mode is normal, undo or redo. Clients use it to tell replays apart.
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives committed mutations.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, e Event) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
