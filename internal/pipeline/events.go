package pipeline

import "time"

// EventType identifies a pipeline bus event.
type EventType string

const (
	// EventError reports a fatal runtime graph failure. Always routed to a
	// full stop.
	EventError EventType = "error"
	// EventWarning reports a recoverable condition. Logged only.
	EventWarning EventType = "warning"
	// EventEOS reports end of stream. Routed to a full stop.
	EventEOS EventType = "eos"
	// EventStateChanged reports a lifecycle transition. Observability only.
	EventStateChanged EventType = "state_changed"
	// EventDetectionMode reports the combined detection toggle changing.
	EventDetectionMode EventType = "detection_mode"
)

// Event is a message from the pipeline bus.
type Event struct {
	Type     EventType
	Message  string
	Err      error
	OldState State
	NewState State
	At       time.Time

	// Stats carries the final graph counters on the transition out of the
	// running state. Zero otherwise.
	Stats GraphStats
}
