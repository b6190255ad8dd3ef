package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnrecognizedCommand is returned for a command name outside the
	// closed command set.
	ErrUnrecognizedCommand = errors.New("protocol: unrecognized command")

	// ErrMalformed is returned for a message that is not a valid command
	// envelope or whose payload does not match the command.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrMissingField is returned when a required payload field is empty.
	ErrMissingField = errors.New("protocol: missing required field")
)

// CommandKind identifies an inbound command.
type CommandKind uint8

const (
	CommandJoin CommandKind = iota + 1
	CommandUserEvent
	CommandLeave
)

// String returns the wire name of the command.
func (k CommandKind) String() string {
	switch k {
	case CommandJoin:
		return "join"
	case CommandUserEvent:
		return "user_event"
	case CommandLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// ParseCommandKind maps a wire name to its kind.
func ParseCommandKind(name string) (CommandKind, error) {
	switch name {
	case "join":
		return CommandJoin, nil
	case "user_event":
		return CommandUserEvent, nil
	case "leave":
		return CommandLeave, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnrecognizedCommand, name)
}

// Request is the raw inbound envelope.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload asks the session to get or create a component and render it.
type JoinPayload struct {
	TagName string `json:"tag_name"`
	ID      string `json:"id"`
	State   string `json:"state"`
}

// UserEventPayload invokes a handler on a live component. ImplicitArgs are
// the serialized form fields around the element that fired; ExplicitArgs
// are the arguments bound in markup and take precedence.
type UserEventPayload struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ImplicitArgs map[string]any `json:"implicit_args"`
	ExplicitArgs map[string]any `json:"explicit_args"`
}

// LeavePayload destroys a component.
type LeavePayload struct {
	ID string `json:"id"`
}

// Command is a decoded inbound command. Exactly one payload pointer is set,
// matching Kind.
type Command struct {
	Kind      CommandKind
	Join      *JoinPayload
	UserEvent *UserEventPayload
	Leave     *LeavePayload
}

// ID returns the component id the command addresses.
func (c *Command) ID() string {
	switch {
	case c.Join != nil:
		return c.Join.ID
	case c.UserEvent != nil:
		return c.UserEvent.ID
	case c.Leave != nil:
		return c.Leave.ID
	}
	return ""
}

// DecodeCommand parses one inbound message.
func DecodeCommand(data []byte) (*Command, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	kind, err := ParseCommandKind(req.Command)
	if err != nil {
		return nil, err
	}
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, kind)
	}

	cmd := &Command{Kind: kind}
	switch kind {
	case CommandJoin:
		p := &JoinPayload{}
		if err := json.Unmarshal(req.Payload, p); err != nil {
			return nil, fmt.Errorf("%w: join: %v", ErrMalformed, err)
		}
		if p.TagName == "" || p.ID == "" {
			return nil, fmt.Errorf("%w: join needs tag_name and id", ErrMissingField)
		}
		cmd.Join = p
	case CommandUserEvent:
		p := &UserEventPayload{}
		if err := json.Unmarshal(req.Payload, p); err != nil {
			return nil, fmt.Errorf("%w: user_event: %v", ErrMalformed, err)
		}
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("%w: user_event needs id and name", ErrMissingField)
		}
		cmd.UserEvent = p
	case CommandLeave:
		p := &LeavePayload{}
		if err := json.Unmarshal(req.Payload, p); err != nil {
			return nil, fmt.Errorf("%w: leave: %v", ErrMalformed, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: leave needs id", ErrMissingField)
		}
		cmd.Leave = p
	}
	return cmd, nil
}

// EncodeCommand builds the wire form of a command. The client and tests
// use it; the server only decodes.
func EncodeCommand(kind CommandKind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Request{Command: kind.String(), Payload: raw})
}
