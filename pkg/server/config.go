package server

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vango-dev/reactor/pkg/protocol"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a message or pong from
	// the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings. Zero disables
	// heartbeats.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// MaxMessageSize is the maximum size of an incoming message.
	// Default: protocol.MaxMessageSize.
	MaxMessageSize int64

	// CommandQueueSize is the buffer between the read loop and the event
	// loop. A full queue blocks reading.
	// Default: 64.
	CommandQueueSize int

	// UpdateQueueSize is the backlog of pending topic events above which
	// the session logs a warning. Events are never dropped.
	// Default: 1024.
	UpdateQueueSize int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    protocol.MaxMessageSize,
		CommandQueueSize:  64,
		UpdateQueueSize:   1024,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults fills zero fields from DefaultSessionConfig.
func (c *SessionConfig) withDefaults() *SessionConfig {
	d := DefaultSessionConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = d.MaxMessageSize
	}
	if out.CommandQueueSize <= 0 {
		out.CommandQueueSize = d.CommandQueueSize
	}
	if out.UpdateQueueSize <= 0 {
		out.UpdateQueueSize = d.UpdateQueueSize
	}
	return out
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// WebSocketPath is the path upgraded to the protocol.
	// Default: "/ws".
	WebSocketPath string

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// EnableCompression negotiates permessage-deflate.
	// Default: true.
	EnableCompression bool

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the configuration for individual sessions.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// MaxSessions is the maximum number of concurrent sessions. Upgrades
	// beyond it are answered with 503. 0 means no limit.
	// Default: 0.
	MaxSessions int

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		WebSocketPath:     "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		EnableCompression: true,
		CheckOrigin:       SameOriginCheck,
		SessionConfig:     DefaultSessionConfig(),
		MaxSessions:       0,
		ShutdownTimeout:   30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.SessionConfig != nil {
		clone.SessionConfig = c.SessionConfig.Clone()
	}
	return &clone
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithWebSocketPath sets the upgrade path and returns the config for chaining.
func (c *ServerConfig) WithWebSocketPath(path string) *ServerConfig {
	c.WebSocketPath = path
	return c
}

// WithSessionConfig sets the session configuration and returns the config for chaining.
func (c *ServerConfig) WithSessionConfig(sc *SessionConfig) *ServerConfig {
	c.SessionConfig = sc
	return c
}

// WithMaxSessions sets the maximum sessions and returns the config for chaining.
func (c *ServerConfig) WithMaxSessions(max int) *ServerConfig {
	c.MaxSessions = max
	return c
}

// ValidateConfig reports the first invalid setting.
func (c *ServerConfig) ValidateConfig() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address is empty", ErrInvalidConfig)
	}
	if c.WebSocketPath == "" || c.WebSocketPath[0] != '/' {
		return fmt.Errorf("%w: websocket path %q must start with /", ErrInvalidConfig, c.WebSocketPath)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("%w: max sessions %d is negative", ErrInvalidConfig, c.MaxSessions)
	}
	if sc := c.SessionConfig; sc != nil {
		if sc.HeartbeatInterval < 0 {
			return fmt.Errorf("%w: heartbeat interval is negative", ErrInvalidConfig)
		}
		if sc.HeartbeatInterval > 0 && sc.ReadTimeout > 0 && sc.HeartbeatInterval >= sc.ReadTimeout {
			return fmt.Errorf("%w: heartbeat interval %s must be shorter than read timeout %s",
				ErrInvalidConfig, sc.HeartbeatInterval, sc.ReadTimeout)
		}
		if sc.MaxMessageSize < 0 || sc.CommandQueueSize < 0 || sc.UpdateQueueSize < 0 {
			return fmt.Errorf("%w: session limits must not be negative", ErrInvalidConfig)
		}
	}
	return nil
}
