package ges

import "fmt"

// Event is a semantic alias of `any` that represents a domain event payload.
// Events are value types: immutable once appended, carrying no reference
// back to the log they live in.
type Event any

// EventType returns the canonical, stable name for a given event. If the
// event implements `EventType() string`, that value is used (and is what
// backend adapters persist as the stream-record type). Otherwise it falls
// back to the Go type name (e.g., "testdomain.UserAdded").
func EventType(e Event) string {
	if named, ok := e.(interface{ EventType() string }); ok {
		return named.EventType()
	}
	return fmt.Sprintf("%T", e)
}

// EntityIdentified is implemented by events that can name the entity they
// belong to. The Load-Decide-Append strategy uses it, via EntityID, to
// derive a brand-new stream's id from the first event a decider produces:
// the stream id is never known before Decide runs.
type EntityIdentified interface {
	EntityID() string
}

// EntityID extracts the entity id from an event, returning false if the
// event does not implement EntityIdentified.
func EntityID(e Event) (string, bool) {
	identified, ok := e.(EntityIdentified)
	if !ok {
		return "", false
	}
	return identified.EntityID(), true
}

// StreamIDFunc derives a backend-opaque stream id from an entity id. It is
// a pure function: within one aggregate's lifetime it must be stable.
type StreamIDFunc func(entityID string) string

// DefaultStreamID returns a StreamIDFunc implementing the
// "{category}-{entity_id}" naming convention (spec §6). The backend
// adapters store whatever stream id they are given; they do not call it.
func DefaultStreamID(category string) StreamIDFunc {
	return func(entityID string) string {
		return category + "-" + entityID
	}
}
