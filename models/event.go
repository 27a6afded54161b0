package models

// EventKind kind of status event
type EventKind int

const (
	EventAdded EventKind = iota + 1
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// StatusEvent added status or removed status id
type StatusEvent struct {
	Kind     EventKind
	Status   *Status
	StatusID uint64
}

// NewAddedEvent new added event
func NewAddedEvent(status *Status) *StatusEvent {
	return &StatusEvent{Kind: EventAdded, Status: status, StatusID: status.ID}
}

// NewRemovedEvent new removed event
func NewRemovedEvent(id uint64) *StatusEvent {
	return &StatusEvent{Kind: EventRemoved, StatusID: id}
}

// IsAdded is added
func (e *StatusEvent) IsAdded() bool {
	return e.Kind == EventAdded
}

// ID status id of the event
func (e *StatusEvent) ID() uint64 {
	return e.StatusID
}
