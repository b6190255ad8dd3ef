package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/topic"
)

// errStopped ends the loop group once the session is closed or its context
// is cancelled.
var errStopped = errors.New("server: session stopped")

// Session is one connection's component tree, topic memberships and
// worker loops. It implements topic.Subscriber and component.Host.
type Session struct {
	// ID uniquely identifies the connection. It is also the session's
	// subscriber id in the topic registry.
	ID        string
	CreatedAt time.Time

	rt         *Runtime
	config     *SessionConfig
	transport  Transport
	middleware []Middleware
	hooks      Hooks
	logger     *slog.Logger

	// tree is owned by the event loop.
	tree *component.Tree

	commands chan []byte
	updates  *mailbox
	done     chan struct{}

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	subMu         sync.Mutex
	subscriptions map[string]struct{}

	// Event loop only.
	current *Op
	visits  []protocol.Event

	commandCount atomic.Int64
	eventsSent   atomic.Int64
	peakBacklog  atomic.Int64
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithMiddleware adds op middleware.
func WithMiddleware(mws ...Middleware) SessionOption {
	return func(s *Session) {
		s.middleware = append(s.middleware, mws...)
	}
}

// WithHooks sets lifecycle hooks.
func WithHooks(h Hooks) SessionOption {
	return func(s *Session) {
		s.hooks = h
	}
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// NewSession creates a session over t. Call Serve to run it.
func NewSession(t Transport, rt *Runtime, config *SessionConfig, opts ...SessionOption) (*Session, error) {
	if err := rt.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	s := &Session{
		ID:            newConnectionID(),
		CreatedAt:     time.Now(),
		rt:            rt,
		config:        config,
		transport:     t,
		logger:        slog.Default(),
		commands:      make(chan []byte, config.CommandQueueSize),
		updates:       newMailbox(),
		done:          make(chan struct{}),
		subscriptions: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.ID)

	s.tree = component.NewTree(component.TreeConfig{
		Registry: rt.Components,
		Renderer: rt.Renderer,
		Differ:   rt.Differ,
		Host:     s,
		Logger:   s.logger,
	})
	return s, nil
}

// Serve sends the component handshake and runs the session until the
// client disconnects, ctx is cancelled or Close is called. Topic
// memberships are released before it returns. A normal disconnect returns
// nil.
func (s *Session) Serve(ctx context.Context) error {
	if s.started.Swap(true) {
		return errors.New("server: session already served")
	}
	s.logger.Info("session started", "remote", s.transport.RemoteAddr())
	if h := s.hooks.OnSessionStart; h != nil {
		h(s)
	}
	defer s.teardown()

	if err := s.send(protocol.Components(s.rt.Components.Types())); err != nil {
		return &SessionError{SessionID: s.ID, Op: "handshake", Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.eventLoop(gctx) })
	g.Go(func() error { return s.heartbeatLoop(gctx) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.done:
		}
		s.transport.Close()
		return errStopped
	})

	err := g.Wait()
	switch {
	case errors.Is(err, errStopped),
		errors.Is(err, ErrConnectionClosed),
		errors.Is(err, context.Canceled):
		return nil
	}
	return &SessionError{SessionID: s.ID, Op: "serve", Err: err}
}

// readLoop moves inbound frames to the command queue. A full queue blocks
// reading so commands are never reordered or dropped.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		msg, err := s.transport.ReadMessage()
		if err != nil {
			return err
		}
		select {
		case s.commands <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// eventLoop is the only goroutine touching the tree.
func (s *Session) eventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg := <-s.commands:
			if err := s.handleMessage(ctx, msg); err != nil {
				return err
			}

		case <-s.updates.wake:
			ev, ok := s.updates.take()
			if !ok {
				continue
			}
			if err := s.handleTopicEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Session) heartbeatLoop(ctx context.Context) error {
	if s.config.HeartbeatInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.transport.Ping(); err != nil {
				s.logger.Error("ping error", "error", err)
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// run passes op through the middleware chain around fn.
func (s *Session) run(ctx context.Context, op *Op, fn func(context.Context) error) error {
	s.current = op
	defer func() { s.current = nil }()

	h := chain(s.middleware, func(ctx context.Context, op *Op) error {
		return fn(ctx)
	})
	err := h(ctx, op)
	if err != nil {
		s.visits = nil
	}
	return err
}

// settle turns an op error into either a logged rejection or, for a
// transport failure, the error that ends the session.
func (s *Session) settle(op *Op, err error) error {
	if err == nil {
		return nil
	}
	var we *writeError
	if errors.As(err, &we) {
		return err
	}
	s.reject(&CommandError{SessionID: s.ID, Command: op.Name, ID: op.ID, Err: err})
	return nil
}

func (s *Session) reject(err *CommandError) {
	s.logger.Warn("command rejected", "command", err.Command, "id", err.ID, "error", err.Err)
}

// send writes one outbound event.
func (s *Session) send(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.transport.WriteMessage(data); err != nil {
		return &writeError{err: err}
	}

	s.eventsSent.Add(1)
	if s.current != nil {
		s.current.Sent++
	}
	if h := s.hooks.OnEventSent; h != nil {
		h(s, string(ev.Type), len(data))
	}
	s.logger.Debug("sent", "type", ev.Type, "id", ev.ID)
	return nil
}

// emit sends the wire event for one render result, then any navigation
// queued while producing it.
func (s *Session) emit(res component.Result) error {
	switch {
	case res.Err != nil:
		return res.Err
	case res.Removed:
		if err := s.send(protocol.Remove(res.ID, nil)); err != nil {
			return err
		}
	case res.Changed:
		if err := s.send(protocol.Render(res.ID, res.Diff)); err != nil {
			return err
		}
	}
	return s.flushVisits()
}

func (s *Session) flushVisits() error {
	for len(s.visits) > 0 {
		ev := s.visits[0]
		s.visits = s.visits[1:]
		if err := s.send(ev); err != nil {
			return err
		}
	}
	return nil
}

// Deliver queues a topic event. It never blocks and never drops an event
// for a live session. Crossing UpdateQueueSize pending events logs a
// warning and calls OnUpdateBacklog.
func (s *Session) Deliver(ev topic.Event) {
	if s.closed.Load() {
		return
	}
	n := s.updates.push(ev)
	for {
		peak := s.peakBacklog.Load()
		if int64(n) <= peak || s.peakBacklog.CompareAndSwap(peak, int64(n)) {
			break
		}
	}
	if n == s.config.UpdateQueueSize+1 {
		s.logger.Warn("update backlog", "pending", n, "topic", ev.Topic)
		if h := s.hooks.OnUpdateBacklog; h != nil {
			h(s, n)
		}
	}
}

// Pending returns the number of topic events not yet applied.
func (s *Session) Pending() int {
	return s.updates.len()
}

// SubscriberID implements topic.Subscriber.
func (s *Session) SubscriberID() string {
	return s.ID
}

// JoinTopic implements component.Host.
func (s *Session) JoinTopic(name string) {
	s.subMu.Lock()
	s.subscriptions[name] = struct{}{}
	s.subMu.Unlock()

	s.rt.Topics.Join(name, s)
	s.logger.Debug("subscribe", "topic", name)
}

// LeaveTopic implements component.Host.
func (s *Session) LeaveTopic(name string) {
	s.subMu.Lock()
	delete(s.subscriptions, name)
	s.subMu.Unlock()

	s.rt.Topics.Leave(name, s)
	s.logger.Debug("unsubscribe", "topic", name)
}

// Visit implements component.Host. The instruction is sent after the
// current render.
func (s *Session) Visit(action, url string) {
	s.visits = append(s.visits, protocol.Visit(action, url))
}

// Subscriptions returns the topics the session is a member of, sorted.
func (s *Session) Subscriptions() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	out := make([]string, 0, len(s.subscriptions))
	for name := range s.subscriptions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close stops the session. Serve returns shortly after. Closing a closed
// session returns ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return ErrSessionClosed
	}
	s.closeOnce.Do(func() { close(s.done) })
	return s.transport.Close()
}

// IsClosed reports whether the session has been closed.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done returns a channel that's closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// teardown releases every topic membership and drops the tree. It runs
// after all loops have stopped.
func (s *Session) teardown() {
	s.closed.Store(true)
	s.closeOnce.Do(func() { close(s.done) })
	s.transport.Close()

	s.subMu.Lock()
	topics := s.subscriptions
	s.subscriptions = make(map[string]struct{})
	s.subMu.Unlock()

	for name := range topics {
		s.rt.Topics.Leave(name, s)
	}
	s.tree.Discard()
	s.visits = nil
	s.updates.clear()

	s.logger.Info("session closed",
		"commands", s.commandCount.Load(),
		"events_sent", s.eventsSent.Load(),
		"peak_backlog", s.peakBacklog.Load(),
		"duration", time.Since(s.CreatedAt))

	if h := s.hooks.OnSessionEnd; h != nil {
		h(s)
	}
}

// Stats returns session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		Commands:       s.commandCount.Load(),
		EventsSent:     s.eventsSent.Load(),
		PeakBacklog:    s.peakBacklog.Load(),
		Subscriptions:  len(s.Subscriptions()),
	}
}

// SessionStats contains session statistics.
type SessionStats struct {
	ID             string
	CreatedAt      time.Time
	Commands       int64
	EventsSent     int64
	PeakBacklog    int64
	Subscriptions  int
}
