package outbox

import "time"

// Progress is the in-memory state of the current or most recent sync cycle.
type Progress struct {
	Total      int  `json:"total"`
	Completed  int  `json:"completed"`
	Failed     int  `json:"failed"`
	InProgress bool `json:"in_progress"`
}

// EventType tags a sync event.
type EventType string

const (
	EventStart    EventType = "start"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is broadcast to engine subscribers during a cycle.
type Event struct {
	Type      EventType
	Queue     string
	CycleID   string
	Progress  Progress
	Err       error // set for EventError only
	Timestamp time.Time
}

// Terminal reports whether the event ends a cycle.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// Listener receives sync events.
type Listener func(Event)
