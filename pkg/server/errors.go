package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for session and server conditions.
var (
	// ErrSessionClosed is returned by Close on a session that is already closed.
	ErrSessionClosed = errors.New("server: session closed")

	// ErrMaxSessionsReached is returned when the maximum number of sessions is reached.
	ErrMaxSessionsReached = errors.New("server: max sessions reached")

	// ErrConnectionClosed is returned by a transport after the peer closed
	// the connection normally.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrMissingRuntime is returned when a session is created without its
	// shared collaborators.
	ErrMissingRuntime = errors.New("server: runtime is incomplete")

	// ErrInvalidConfig is returned by ValidateConfig.
	ErrInvalidConfig = errors.New("server: invalid config")
)

// CommandError is a rejected command. It is logged and counted; the
// session carries on.
type CommandError struct {
	SessionID string
	Command   string
	ID        string
	Err       error
}

// Error returns the error message with session context.
func (e *CommandError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Command, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s #%s: %v", e.SessionID, e.Command, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// SessionError wraps a failure that ended a session.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

// Error returns the error message with session context.
func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// writeError marks a transport write failure, which ends the session
// rather than a single command.
type writeError struct {
	err error
}

func (e *writeError) Error() string { return "server: write: " + e.err.Error() }

func (e *writeError) Unwrap() error { return e.err }
