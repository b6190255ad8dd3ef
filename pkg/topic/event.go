package topic

import "fmt"

// Kind identifies what a receiving session does with a published Event.
type Kind uint8

const (
	// KindUpdate re-runs the update handler of every component in the
	// receiving session that is subscribed to the event's topic.
	KindUpdate Kind = iota

	// KindRemove destroys the component with Event.ID and tells the client
	// to drop it.
	KindRemove

	// KindVisit is passed through to the client verbatim as a navigation
	// instruction.
	KindVisit

	// KindDispatch runs the handler named Event.Name on the component with
	// Event.ID, as if the client had sent a user_event.
	KindDispatch
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindRemove:
		return "remove"
	case KindVisit:
		return "visit"
	case KindDispatch:
		return "dispatch"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is a broadcast message addressed to a topic.
type Event struct {
	// Kind selects the receiving session's behavior.
	Kind Kind

	// Topic is filled in by Registry.Publish with the topic the event was
	// published on.
	Topic string

	// ID addresses a single component for KindRemove and KindDispatch.
	ID string

	// Name is the handler name for KindDispatch.
	Name string

	// Data carries kind-specific fields: extra fields of a remove event,
	// action and url of a visit, arguments of a dispatch, or arbitrary
	// payload handed to update handlers.
	Data map[string]any
}

// Update returns an update event carrying data.
func Update(data map[string]any) Event {
	return Event{Kind: KindUpdate, Data: data}
}

// Remove returns an event that force-removes the component id.
func Remove(id string, extra map[string]any) Event {
	return Event{Kind: KindRemove, ID: id, Data: extra}
}

// Visit returns a navigation event.
func Visit(action, url string) Event {
	return Event{Kind: KindVisit, Data: map[string]any{"action": action, "url": url}}
}

// Dispatch returns an event that runs handler name on component id.
func Dispatch(id, name string, args map[string]any) Event {
	return Event{Kind: KindDispatch, ID: id, Name: name, Data: args}
}

// String returns the string value stored under key in Data, or "".
func (e Event) String(key string) string {
	if s, ok := e.Data[key].(string); ok {
		return s
	}
	return ""
}
