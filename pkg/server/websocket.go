package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport adapts a gorilla websocket connection.
type wsTransport struct {
	conn   *websocket.Conn
	config *SessionConfig

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport wraps an upgraded connection. Read deadlines are
// extended on every message and pong.
func NewWebSocketTransport(conn *websocket.Conn, config *SessionConfig) Transport {
	config = config.withDefaults()
	t := &wsTransport{conn: conn, config: config}

	conn.SetReadLimit(config.MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
	})
	return t
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout)); err != nil {
			return nil, err
		}
		kind, msg, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrConnectionClosed
			}
			return nil, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return msg, nil
	}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.config.WriteTimeout))
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		err := t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		if errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
		if cerr := t.conn.Close(); err == nil {
			err = cerr
		}
		t.closeErr = err
	})
	return t.closeErr
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
