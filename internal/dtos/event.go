package dtos

import "encoding/json"

type EventKind int

const (
	EventMessage EventKind = iota
	EventSync
	EventSynced
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventSync:
		return "sync"
	case EventSynced:
		return "synced"
	case EventError:
		return "error"
	}

	return "unknown"
}

// Event is published by the replication engine, always tagged with its instrument.
// Payload is set for EventMessage, Err for EventError.
type Event struct {
	Kind       EventKind
	Instrument string
	Payload    json.RawMessage
	Err        error
}

// LifecycleNotice is the JSON form of a non-message event pushed to downstream clients.
type LifecycleNotice struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Error     string `json:"error,omitempty"`
}
