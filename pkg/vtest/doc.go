// Package vtest provides helpers for driving sessions in tests without a
// network.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    h := vtest.NewHarness(t, registry, templates)
//	    _, c := h.Connect()
//
//	    c.Join("x-counter", "c1", h.State(nil))
//	    c.Expect(protocol.EventRender)
//	    vtest.ExpectContains(t, c.HTML("c1"), "0 items")
//
//	    h.Topics.Publish("item", topic.Update(nil))
//	    c.Expect(protocol.EventRender)
//	}
//
// # Pipe
//
// Pipe is an in-memory server.Transport. The Client wraps its far end:
// it encodes commands, decodes events and applies render diffs so that
// HTML returns what a browser would show for a component.
//
// # Recorder
//
// Recorder is a server.Middleware that records every op a session
// handles, for asserting ordering and counts.
package vtest
