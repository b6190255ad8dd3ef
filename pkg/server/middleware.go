package server

import "context"

// Op describes one unit of session work: an inbound command or a topic
// event being applied.
type Op struct {
	SessionID string

	// Name is the command or event kind: join, user_event, leave, update,
	// remove, visit or dispatch.
	Name string

	// Target is the tag of a join, the handler of a user_event or
	// dispatch, or the topic of a propagated event.
	Target string

	// ID is the addressed component, if any.
	ID string

	// Sent counts outbound events written while handling the op. It is
	// final once next returns.
	Sent int
}

// HandlerFunc processes an Op.
type HandlerFunc func(ctx context.Context, op *Op) error

// Middleware wraps op processing, e.g. for metrics or tracing.
type Middleware func(next HandlerFunc) HandlerFunc

// chain composes middleware so that the first one is outermost.
func chain(mws []Middleware, h HandlerFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Hooks receive session lifecycle and traffic notifications. Nil fields
// are skipped. Hooks run on session goroutines and must not block.
type Hooks struct {
	OnSessionStart func(s *Session)
	OnSessionEnd   func(s *Session)

	// OnEventSent is called after an outbound event is written.
	OnEventSent func(s *Session, eventType string, bytes int)

	// OnUpdateBacklog is called when the pending topic events of a session
	// first exceed UpdateQueueSize.
	OnUpdateBacklog func(s *Session, pending int)
}
