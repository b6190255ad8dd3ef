package vtest

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/render"
)

// DefaultTimeout bounds every wait for an outbound event.
const DefaultTimeout = 2 * time.Second

// Client is the test-side peer of a Pipe.
type Client struct {
	t       testing.TB
	pipe    *Pipe
	timeout time.Duration

	// Types is the tag to supertype mapping from the handshake, once
	// received.
	Types map[string]string

	html    map[string]string
	removed map[string]bool
}

// NewClient wraps the far end of p.
func NewClient(t testing.TB, p *Pipe) *Client {
	return &Client{
		t:       t,
		pipe:    p,
		timeout: DefaultTimeout,
		html:    make(map[string]string),
		removed: make(map[string]bool),
	}
}

// Pipe returns the underlying transport.
func (c *Client) Pipe() *Pipe {
	return c.pipe
}

// SetTimeout changes how long Next waits.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *Client) command(kind protocol.CommandKind, payload any) {
	c.t.Helper()
	data, err := protocol.EncodeCommand(kind, payload)
	if err != nil {
		c.t.Fatalf("encode %s: %v", kind, err)
	}
	c.SendRaw(data)
}

// SendRaw sends an arbitrary message.
func (c *Client) SendRaw(data []byte) {
	c.t.Helper()
	if err := c.pipe.Send(data); err != nil {
		c.t.Fatalf("send: %v", err)
	}
}

// Join sends a join command.
func (c *Client) Join(tag, id, state string) {
	c.t.Helper()
	c.command(protocol.CommandJoin, protocol.JoinPayload{TagName: tag, ID: id, State: state})
}

// UserEvent sends a user_event command.
func (c *Client) UserEvent(id, name string, implicit, explicit map[string]any) {
	c.t.Helper()
	c.command(protocol.CommandUserEvent, protocol.UserEventPayload{
		ID:           id,
		Name:         name,
		ImplicitArgs: implicit,
		ExplicitArgs: explicit,
	})
}

// Leave sends a leave command.
func (c *Client) Leave(id string) {
	c.t.Helper()
	c.command(protocol.CommandLeave, protocol.LeavePayload{ID: id})
}

// Next waits for the next outbound event and applies it.
func (c *Client) Next() protocol.Event {
	c.t.Helper()
	select {
	case msg := <-c.pipe.Outbound():
		var ev protocol.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.t.Fatalf("decode event %s: %v", msg, err)
		}
		c.apply(ev)
		return ev
	case <-time.After(c.timeout):
		c.t.Fatalf("no event within %s", c.timeout)
		return protocol.Event{}
	}
}

// Expect waits for the next event and fails unless it has type typ.
func (c *Client) Expect(typ protocol.EventType) protocol.Event {
	c.t.Helper()
	ev := c.Next()
	if ev.Type != typ {
		c.t.Fatalf("event type = %q, want %q (event %+v)", ev.Type, typ, ev)
	}
	return ev
}

// ExpectNone fails if an event arrives within d.
func (c *Client) ExpectNone(d time.Duration) {
	c.t.Helper()
	select {
	case msg := <-c.pipe.Outbound():
		c.t.Fatalf("unexpected event %s", msg)
	case <-time.After(d):
	}
}

// Drain returns every event that arrives until d passes without one.
func (c *Client) Drain(d time.Duration) []protocol.Event {
	c.t.Helper()
	var out []protocol.Event
	for {
		select {
		case msg := <-c.pipe.Outbound():
			var ev protocol.Event
			if err := json.Unmarshal(msg, &ev); err != nil {
				c.t.Fatalf("decode event %s: %v", msg, err)
			}
			c.apply(ev)
			out = append(out, ev)
		case <-time.After(d):
			return out
		}
	}
}

func (c *Client) apply(ev protocol.Event) {
	c.t.Helper()
	switch ev.Type {
	case protocol.EventComponents:
		c.Types = ev.ComponentTypes
	case protocol.EventRender:
		script, ok := ev.Diff.([]any)
		if !ok {
			c.t.Fatalf("render %s: diff is %T, want []any", ev.ID, ev.Diff)
		}
		html, err := render.Apply(c.HTML(ev.ID), script)
		if err != nil {
			c.t.Fatalf("render %s: %v", ev.ID, err)
		}
		c.html[ev.ID] = html
		c.replaceNested(ev.ID, html)
		delete(c.removed, ev.ID)
	case protocol.EventRemove:
		delete(c.html, ev.ID)
		c.replaceNested(ev.ID, "")
		c.removed[ev.ID] = true
	}
}

// HTML returns the client's current copy of a component's output. A
// component nested in another one is read from its parent's markup, the
// way a browser would see it.
func (c *Client) HTML(id string) string {
	for owner, doc := range c.html {
		if owner == id {
			continue
		}
		if start, end, ok := findElement(doc, id); ok {
			return doc[start:end]
		}
	}
	return c.html[id]
}

// replaceNested swaps the element id inside every other component's
// markup for html.
func (c *Client) replaceNested(id, html string) {
	for owner, doc := range c.html {
		if owner == id {
			continue
		}
		if start, end, ok := findElement(doc, id); ok {
			c.html[owner] = doc[:start] + html + doc[end:]
		}
	}
}

// Removed reports whether the server removed id.
func (c *Client) Removed(id string) bool {
	return c.removed[id]
}

// Close simulates the client disconnecting.
func (c *Client) Close() {
	c.pipe.Close()
}

// ExpectContains asserts that s contains expected.
func ExpectContains(t testing.TB, s, expected string) {
	t.Helper()
	if !strings.Contains(s, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, truncate(s, 500))
	}
}

// ExpectNotContains asserts that s does not contain unexpected.
func ExpectNotContains(t testing.TB, s, unexpected string) {
	t.Helper()
	if strings.Contains(s, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, truncate(s, 500))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
