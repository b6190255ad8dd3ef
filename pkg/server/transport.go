package server

// Transport carries whole protocol messages for one connection.
//
// ReadMessage is called from a single goroutine. WriteMessage is called
// from the event loop only. Ping and Close may be called concurrently with
// either.
type Transport interface {
	// ReadMessage blocks for the next inbound message. It returns
	// ErrConnectionClosed after a normal close by the peer.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one message.
	WriteMessage(data []byte) error

	// Ping sends a heartbeat.
	Ping() error

	// Close closes the connection. Later calls are no-ops.
	Close() error

	// RemoteAddr identifies the peer in logs.
	RemoteAddr() string
}
