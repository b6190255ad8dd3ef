package vtest

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/envelope"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/render"
	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/topic"
)

// TestSecret is the signing key used by harnesses.
var TestSecret = []byte("vtest-signing-secret")

// Harness wires a runtime for tests.
type Harness struct {
	T       testing.TB
	Runtime *server.Runtime
	Topics  *topic.Registry
	Signer  *envelope.Signer
	Config  *server.SessionConfig
}

// NewHarness creates a runtime around reg with a fresh topic registry,
// the test signer, a TextDiffer and a TemplateRenderer parsing the
// "*.html" files of templates. Heartbeats are disabled.
func NewHarness(t testing.TB, reg *component.Registry, templates fs.FS) *Harness {
	t.Helper()
	signer, err := envelope.NewSigner(TestSecret)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	r, err := render.NewTemplateRenderer(render.TemplateConfig{FS: templates, Signer: signer})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}

	topics := topic.NewRegistry()
	t.Cleanup(topics.Close)

	config := server.DefaultSessionConfig()
	config.HeartbeatInterval = 0

	return &Harness{
		T:      t,
		Topics: topics,
		Signer: signer,
		Config: config,
		Runtime: &server.Runtime{
			Topics:     topics,
			Components: reg,
			Signer:     signer,
			Renderer:   r,
			Differ:     render.NewTextDiffer(),
		},
	}
}

// State signs construction arguments the way a rendered page would.
func (h *Harness) State(args map[string]any) string {
	h.T.Helper()
	s, err := h.Signer.Encode(args)
	if err != nil {
		h.T.Fatalf("encode state: %v", err)
	}
	return s
}

// Connect starts a session over a new pipe and consumes the component
// handshake. The session is closed and awaited at test cleanup.
func (h *Harness) Connect(opts ...server.SessionOption) (*server.Session, *Client) {
	h.T.Helper()
	pipe := NewPipe(0)
	sess, err := server.NewSession(pipe, h.Runtime, h.Config, opts...)
	if err != nil {
		h.T.Fatalf("new session: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Serve(context.Background()) }()
	h.T.Cleanup(func() {
		sess.Close()
		select {
		case <-done:
		case <-time.After(DefaultTimeout):
			h.T.Errorf("session %s did not stop", sess.ID)
		}
	})

	c := NewClient(h.T, pipe)
	c.Expect(protocol.EventComponents)
	return sess, c
}

// WaitUntil polls cond until it holds or the default timeout passes.
func WaitUntil(t testing.TB, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
