package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

// Server is the HTTP entry point: it upgrades requests on the websocket
// path and runs one Session per connection.
type Server struct {
	config   *ServerConfig
	sessions *SessionManager
	upgrader websocket.Upgrader
	router   chi.Router

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	httpServer *http.Server

	logger *slog.Logger
}

// New creates a Server. Unset config fields take their defaults.
func New(config *ServerConfig, rt *Runtime) *Server {
	defaults := DefaultServerConfig()
	if config == nil {
		config = defaults
	} else {
		config = config.Clone()
		if config.Address == "" {
			config.Address = defaults.Address
		}
		if config.WebSocketPath == "" {
			config.WebSocketPath = defaults.WebSocketPath
		}
		if config.ReadBufferSize == 0 {
			config.ReadBufferSize = defaults.ReadBufferSize
		}
		if config.WriteBufferSize == 0 {
			config.WriteBufferSize = defaults.WriteBufferSize
		}
		if config.CheckOrigin == nil {
			config.CheckOrigin = defaults.CheckOrigin
		}
		if config.ShutdownTimeout == 0 {
			config.ShutdownTimeout = defaults.ShutdownTimeout
		}
		if config.ReadHeaderTimeout == 0 {
			config.ReadHeaderTimeout = defaults.ReadHeaderTimeout
		}
	}
	config.SessionConfig = config.SessionConfig.withDefaults()

	logger := slog.Default().With("component", "server")
	if err := config.ValidateConfig(); err != nil {
		logger.Error("config validation failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		sessions: NewSessionManager(rt, config.SessionConfig, config.MaxSessions, slog.Default()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       config.CheckOrigin,
			EnableCompression: config.EnableCompression,
		},
		baseCtx: ctx,
		cancel:  cancel,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get(config.WebSocketPath, s.HandleWebSocket)
	s.router = r
	return s
}

// Use adds session middleware.
func (s *Server) Use(mws ...Middleware) {
	s.sessions.Use(mws...)
}

// SetHooks sets session lifecycle hooks.
func (s *Server) SetHooks(h Hooks) {
	s.sessions.SetHooks(h)
}

// Router returns the mux so applications can mount pages and endpoints
// next to the websocket path.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HandleWebSocket upgrades the request and serves the connection until
// it ends.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.CheckCapacity(); err != nil {
		s.logger.Warn("rejecting connection", "error", err, "remote", r.RemoteAddr)
		http.Error(w, "too many sessions", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	t := NewWebSocketTransport(conn, s.config.SessionConfig)
	err = s.sessions.Serve(s.baseCtx, t)
	switch {
	case err == nil:
	case errors.Is(err, ErrMaxSessionsReached):
		s.logger.Warn("rejecting connection", "error", err, "remote", r.RemoteAddr)
	default:
		s.logger.Error("session ended with error", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.config.ValidateConfig(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address, "websocket_path", s.config.WebSocketPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every session and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.cancel()
	err := s.sessions.CloseAll()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		err = multierr.Append(err, srv.Shutdown(ctx))
	}

	if err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger sets the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}
