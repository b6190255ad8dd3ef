package vtest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/reactor/pkg/server"
)

// ErrPipeClosed is returned by writes on a closed pipe.
var ErrPipeClosed = errors.New("vtest: pipe closed")

// Pipe is an in-memory transport. The server side is the
// server.Transport methods; the client side is Send and Receive.
type Pipe struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	pings atomic.Int64
}

var _ server.Transport = (*Pipe)(nil)

// NewPipe creates a pipe with buffer slots in each direction.
func NewPipe(buffer int) *Pipe {
	if buffer <= 0 {
		buffer = 256
	}
	return &Pipe{
		in:     make(chan []byte, buffer),
		out:    make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// ReadMessage implements server.Transport.
func (p *Pipe) ReadMessage() ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return nil, server.ErrConnectionClosed
	}
}

// WriteMessage implements server.Transport.
func (p *Pipe) WriteMessage(data []byte) error {
	buf := append([]byte(nil), data...)
	select {
	case <-p.closed:
		return ErrPipeClosed
	default:
	}
	select {
	case p.out <- buf:
		return nil
	case <-p.closed:
		return ErrPipeClosed
	}
}

// Ping implements server.Transport.
func (p *Pipe) Ping() error {
	select {
	case <-p.closed:
		return ErrPipeClosed
	default:
	}
	p.pings.Add(1)
	return nil
}

// Close implements server.Transport. It is also how a test simulates the
// client disconnecting.
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// RemoteAddr implements server.Transport.
func (p *Pipe) RemoteAddr() string {
	return "pipe"
}

// Pings returns the number of heartbeats sent.
func (p *Pipe) Pings() int64 {
	return p.pings.Load()
}

// Send delivers a raw message to the server side.
func (p *Pipe) Send(msg []byte) error {
	select {
	case <-p.closed:
		return ErrPipeClosed
	case p.in <- msg:
		return nil
	}
}

// Outbound returns the channel of messages written by the server.
func (p *Pipe) Outbound() <-chan []byte {
	return p.out
}

// Closed returns a channel closed with the pipe.
func (p *Pipe) Closed() <-chan struct{} {
	return p.closed
}
