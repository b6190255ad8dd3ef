package protocol

import "encoding/json"

// EventType identifies an outbound event.
type EventType string

const (
	EventComponents EventType = "components"
	EventRender     EventType = "render"
	EventRemove     EventType = "remove"
	EventVisit      EventType = "visit"
)

// Event is an outbound message. Fields not used by Type are omitted.
type Event struct {
	Type EventType

	// ComponentTypes maps every registered tag to its supertype. Sent once
	// as the first message of a connection.
	ComponentTypes map[string]string

	// ID addresses the component of a render or remove.
	ID string

	// Diff is the render artifact.
	Diff any

	// Action and URL describe a visit.
	Action string
	URL    string

	// Extra carries additional fields of a remove or visit, flattened into
	// the message.
	Extra map[string]any
}

// Components returns the handshake event.
func Components(types map[string]string) Event {
	return Event{Type: EventComponents, ComponentTypes: types}
}

// Render returns a render event.
func Render(id string, diff any) Event {
	return Event{Type: EventRender, ID: id, Diff: diff}
}

// Remove returns a remove event.
func Remove(id string, extra map[string]any) Event {
	return Event{Type: EventRemove, ID: id, Extra: extra}
}

// Visit returns a navigation event.
func Visit(action, url string) Event {
	return Event{Type: EventVisit, Action: action, URL: url}
}

// MarshalJSON flattens the event into its wire object.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 4+len(e.Extra))
	switch e.Type {
	case EventComponents:
		types := e.ComponentTypes
		if types == nil {
			types = map[string]string{}
		}
		m["component_types"] = types
	case EventRender:
		m["id"] = e.ID
		m["html_diff"] = e.Diff
	case EventRemove:
		for k, v := range e.Extra {
			m[k] = v
		}
		m["id"] = e.ID
	case EventVisit:
		for k, v := range e.Extra {
			m[k] = v
		}
		m["action"] = e.Action
		m["url"] = e.URL
	}
	m["type"] = e.Type
	return json.Marshal(m)
}

// UnmarshalJSON parses the wire object. Unknown fields of a remove or
// visit are kept in Extra.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = Event{}

	str := func(key string) (string, error) {
		var s string
		if raw, ok := m[key]; ok {
			if err := json.Unmarshal(raw, &s); err != nil {
				return "", err
			}
		}
		return s, nil
	}

	t, err := str("type")
	if err != nil {
		return err
	}
	e.Type = EventType(t)

	switch e.Type {
	case EventComponents:
		if raw, ok := m["component_types"]; ok {
			if err := json.Unmarshal(raw, &e.ComponentTypes); err != nil {
				return err
			}
		}
	case EventRender:
		if e.ID, err = str("id"); err != nil {
			return err
		}
		if raw, ok := m["html_diff"]; ok {
			if err := json.Unmarshal(raw, &e.Diff); err != nil {
				return err
			}
		}
	case EventRemove:
		if e.ID, err = str("id"); err != nil {
			return err
		}
		if e.Extra, err = extraFields(m, "id"); err != nil {
			return err
		}
	case EventVisit:
		if e.Action, err = str("action"); err != nil {
			return err
		}
		if e.URL, err = str("url"); err != nil {
			return err
		}
		if e.Extra, err = extraFields(m, "action", "url"); err != nil {
			return err
		}
	}
	return nil
}

// extraFields decodes every field of m except type and known.
func extraFields(m map[string]json.RawMessage, known ...string) (map[string]any, error) {
	var extra map[string]any
next:
	for k, raw := range m {
		if k == "type" {
			continue
		}
		for _, name := range known {
			if k == name {
				continue next
			}
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra, nil
}
