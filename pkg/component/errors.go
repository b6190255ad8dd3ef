package component

import (
	"errors"
	"fmt"
)

// Sentinel errors for tree and registry operations.
var (
	// ErrUnknownType is returned when a tag has no registered definition.
	ErrUnknownType = errors.New("component: unknown component type")

	// ErrUnknownComponent is returned when no live component has the id.
	ErrUnknownComponent = errors.New("component: unknown component")

	// ErrUnknownHandler is returned when the component's definition has no
	// handler for the event name.
	ErrUnknownHandler = errors.New("component: unknown handler")

	// ErrDuplicateID is returned when an id is already live under another tag.
	ErrDuplicateID = errors.New("component: id already in use by another tag")

	// ErrDuplicateType is returned when a tag is registered twice.
	ErrDuplicateType = errors.New("component: type already registered")

	// ErrInvalidDefinition is returned for a definition without tag or constructor.
	ErrInvalidDefinition = errors.New("component: invalid definition")

	// ErrDestroyed is returned by GetOrCreate when the component asked to be
	// destroyed while mounting. The slot is left as if it never existed.
	ErrDestroyed = errors.New("component: destroyed during mount")
)

// Error adds the addressed component to a lookup failure.
type Error struct {
	Op  string
	Tag string
	ID  string
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("component: %s %s#%s: %v", e.Op, e.Tag, e.ID, e.Err)
	}
	return fmt.Sprintf("component: %s #%s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// CollaboratorError wraps a failure raised by component code or by the
// renderer: mount, handler, update or render.
type CollaboratorError struct {
	Op  string
	ID  string
	Err error
}

// Error returns the error message.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("component: %s #%s failed: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// PanicError records a panic recovered from component code.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
