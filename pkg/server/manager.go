package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// SessionManager tracks live sessions and enforces the session limit.
type SessionManager struct {
	rt     *Runtime
	config *SessionConfig

	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	peak        int
	middleware  []Middleware
	hooks       Hooks

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64

	base   *slog.Logger
	logger *slog.Logger
}

// NewSessionManager creates a manager. maxSessions <= 0 means no limit.
func NewSessionManager(rt *Runtime, config *SessionConfig, maxSessions int, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		rt:          rt,
		config:      config.withDefaults(),
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		base:        logger,
		logger:      logger.With("component", "session_manager"),
	}
}

// Use adds middleware applied to sessions created afterwards.
func (sm *SessionManager) Use(mws ...Middleware) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.middleware = append(sm.middleware, mws...)
}

// SetHooks sets hooks for sessions created afterwards.
func (sm *SessionManager) SetHooks(h Hooks) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = h
}

// CheckCapacity reports ErrMaxSessionsReached when no session can be added.
func (sm *SessionManager) CheckCapacity() error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return ErrMaxSessionsReached
	}
	return nil
}

// Create registers a new session over t.
func (sm *SessionManager) Create(t Transport) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, ErrMaxSessionsReached
	}

	mws := append([]Middleware(nil), sm.middleware...)
	s, err := NewSession(t, sm.rt, sm.config,
		WithMiddleware(mws...),
		WithHooks(sm.hooks),
		WithLogger(sm.base.With("component", "session")),
	)
	if err != nil {
		return nil, err
	}

	sm.sessions[s.ID] = s
	sm.totalCreated.Add(1)
	if len(sm.sessions) > sm.peak {
		sm.peak = len(sm.sessions)
	}
	return s, nil
}

// Serve creates a session over t, runs it and unregisters it when it ends.
// If no session can be created, t is closed.
func (sm *SessionManager) Serve(ctx context.Context, t Transport) error {
	s, err := sm.Create(t)
	if err != nil {
		t.Close()
		return err
	}
	defer sm.remove(s.ID)
	return s.Serve(ctx)
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.sessions[id]; ok {
		delete(sm.sessions, id)
		sm.totalClosed.Add(1)
	}
}

// Get returns a live session, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ForEach calls fn for each session until it returns false.
func (sm *SessionManager) ForEach(fn func(*Session) bool) {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}

// CloseAll closes every live session and returns the combined close errors.
func (sm *SessionManager) CloseAll() error {
	var err error
	sm.ForEach(func(s *Session) bool {
		if cerr := s.Close(); !errors.Is(cerr, ErrSessionClosed) {
			err = multierr.Append(err, cerr)
		}
		return true
	})
	if err != nil {
		sm.logger.Warn("errors closing sessions", "count", len(multierr.Errors(err)), "error", err)
	}
	return err
}

// Stats returns manager statistics.
func (sm *SessionManager) Stats() ManagerStats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return ManagerStats{
		Active:       len(sm.sessions),
		Peak:         sm.peak,
		TotalCreated: sm.totalCreated.Load(),
		TotalClosed:  sm.totalClosed.Load(),
	}
}

// ManagerStats contains session manager statistics.
type ManagerStats struct {
	Active       int
	Peak         int
	TotalCreated uint64
	TotalClosed  uint64
}
