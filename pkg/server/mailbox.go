package server

import (
	"sync"

	"github.com/vango-dev/reactor/pkg/topic"
)

// mailbox is an unbounded FIFO of topic events. Publishers never block on
// it and nothing is dropped; the event loop drains it one event at a time
// so writes to the transport pace the session.
type mailbox struct {
	mu      sync.Mutex
	pending []topic.Event
	wake    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

// push appends ev and returns the number of pending events.
func (m *mailbox) push(ev topic.Event) int {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	n := len(m.pending)
	m.mu.Unlock()

	m.signal()
	return n
}

// take removes the oldest event. The wake channel is signalled again while
// events remain, so commands interleave with a long backlog.
func (m *mailbox) take() (topic.Event, bool) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return topic.Event{}, false
	}
	ev := m.pending[0]
	m.pending[0] = topic.Event{}
	m.pending = m.pending[1:]
	if len(m.pending) == 0 {
		m.pending = nil
	}
	more := len(m.pending) > 0
	m.mu.Unlock()

	if more {
		m.signal()
	}
	return ev, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *mailbox) clear() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
