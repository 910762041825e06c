// Package model provides domain types shared across packages.
package model

// EventType identifies the kind of an Event on the query stream.
type EventType string

const (
	// EventMessage carries status or answer text.
	EventMessage EventType = "message"
	// EventCommand carries the shell text about to run, prefixed with "$ ".
	EventCommand EventType = "command"
	// EventResult carries captured command output, possibly truncated.
	EventResult EventType = "result"
	// EventError carries a failure description.
	EventError EventType = "error"
)

// Event is one item of the ordered stream a query produces.
// The transport layer relays events to clients and appends its own "done" marker.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Message creates a message event.
func Message(content string) Event {
	return Event{Type: EventMessage, Content: content}
}

// Command creates a command event for the given shell text.
func Command(command string) Event {
	return Event{Type: EventCommand, Content: "$ " + command}
}

// Result creates a result event.
func Result(output string) Event {
	return Event{Type: EventResult, Content: output}
}

// Error creates an error event.
func Error(content string) Event {
	return Event{Type: EventError, Content: content}
}

// CloneEvents returns a copy of events that shares no backing array.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
