// Package protocol defines the JSON wire format spoken between the
// browser client and a session.
//
// Every inbound message is a command envelope:
//
//	{"command": "join", "payload": {"tag_name": "x-todo-list", "id": "list", "state": "eyJ..."}}
//	{"command": "user_event", "payload": {"id": "item-3", "name": "completed", "implicit_args": {...}, "explicit_args": {...}}}
//	{"command": "leave", "payload": {"id": "item-3"}}
//
// Every outbound message is an event tagged by type:
//
//	{"type": "components", "component_types": {"x-todo-item": "li"}}
//	{"type": "render", "id": "item-3", "html_diff": [120, -5, "true", 40]}
//	{"type": "remove", "id": "item-3"}
//	{"type": "visit", "action": "advance", "url": "/done"}
//
// The command set is closed: anything else fails with
// ErrUnrecognizedCommand.
package protocol
