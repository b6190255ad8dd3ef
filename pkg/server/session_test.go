package server_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/envelope"
	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/topic"
	"github.com/vango-dev/reactor/pkg/vtest"
)

const quiet = 100 * time.Millisecond

var errHandler = errors.New("handler failed")

type counter struct {
	component.Base
	N int
}

func (c *counter) Mount(ctx *component.Context, args component.Args) error {
	c.N = args.Int("n", 0)
	ctx.Subscribe("count")
	return nil
}

func (c *counter) Serialize() component.Args {
	return component.Args{"id": c.ID(), "n": c.N}
}

func (c *counter) Update(ctx *component.Context, ev topic.Event) error {
	c.N = component.Args(ev.Data).Int("n", c.N)
	return nil
}

type list struct {
	component.Base
	Items []string
}

func (l *list) Mount(ctx *component.Context, args component.Args) error {
	if items, ok := args["items"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok {
				l.Items = append(l.Items, s)
			}
		}
	}
	return nil
}

func (l *list) Serialize() component.Args {
	return component.Args{"id": l.ID(), "items": l.Items}
}

type gone struct {
	component.Base
}

func (g *gone) Mount(ctx *component.Context, args component.Args) error {
	ctx.Destroy()
	return nil
}

var templates = fstest.MapFS{
	"x-counter.html": {Data: []byte(`count={{.N}}`)},
	"x-list.html":    {Data: []byte(`{{range .Items}}{{component "x-counter" . "n" 0}}{{end}}`)},
	"x-gone.html":    {Data: []byte(``)},
}

func newRegistry() *component.Registry {
	reg := component.NewRegistry()
	reg.MustRegister(
		component.Define("x-counter", "", func() *counter { return &counter{} },
			map[string]func(*counter, *component.Context, component.Args) error{
				"inc": func(c *counter, ctx *component.Context, args component.Args) error {
					c.N += args.Int("by", 1)
					return nil
				},
				"set": func(c *counter, ctx *component.Context, args component.Args) error {
					if nested, ok := args["set"].(map[string]any); ok {
						c.N = component.Args(nested).Int("n", c.N)
					}
					return nil
				},
				"noop": func(c *counter, ctx *component.Context, args component.Args) error {
					return nil
				},
				"fail": func(c *counter, ctx *component.Context, args component.Args) error {
					return errHandler
				},
				"go": func(c *counter, ctx *component.Context, args component.Args) error {
					ctx.Visit("push", "/next")
					return nil
				},
			}),
		component.Define("x-list", "ul", func() *list { return &list{} }, nil),
		component.Define("x-gone", "", func() *gone { return &gone{} }, nil),
	)
	return reg
}

func newHarness(t *testing.T) *vtest.Harness {
	t.Helper()
	return vtest.NewHarness(t, newRegistry(), templates)
}

func TestHandshakeIsFirst(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	if got := c.Types["x-list"]; got != "ul" {
		t.Errorf("Types[x-list] = %q, want ul", got)
	}
	if _, ok := c.Types["x-counter"]; !ok {
		t.Error("handshake is missing x-counter")
	}
	c.ExpectNone(quiet)
}

func TestJoinRendersFullOutput(t *testing.T) {
	h := newHarness(t)
	sess, c := h.Connect()

	c.Join("x-counter", "c1", h.State(map[string]any{"n": 3}))
	ev := c.Expect(protocol.EventRender)
	if ev.ID != "c1" {
		t.Errorf("render id = %q, want c1", ev.ID)
	}
	vtest.ExpectContains(t, c.HTML("c1"), "count=3")
	vtest.ExpectContains(t, c.HTML("c1"), `id="c1"`)

	if got := sess.Subscriptions(); len(got) != 1 || got[0] != "count" {
		t.Errorf("Subscriptions() = %v, want [count]", got)
	}
	if !h.Topics.IsMember("count", sess.ID) {
		t.Error("session should be a member of count")
	}
}

func TestJoinLiveComponentSendsNothing(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	state := h.State(map[string]any{"n": 1})
	c.Join("x-counter", "c1", state)
	c.Expect(protocol.EventRender)

	c.Join("x-counter", "c1", state)
	c.ExpectNone(quiet)
}

func TestJoinRejectsTamperedState(t *testing.T) {
	h := newHarness(t)
	sess, c := h.Connect()

	state := h.State(map[string]any{"n": 1})
	c.Join("x-counter", "c1", state[:len(state)-2]+"xx")
	c.ExpectNone(quiet)
	if got := sess.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, want none", got)
	}

	// The session keeps serving.
	c.Join("x-counter", "c1", state)
	c.Expect(protocol.EventRender)
}

func TestJoinRejectsStateSignedForAnotherID(t *testing.T) {
	h := newHarness(t)
	rec := &vtest.Recorder{}
	sess, c := h.Connect(server.WithMiddleware(rec.Middleware()))

	state := h.State(map[string]any{"id": "c1", "n": 5})
	c.Join("x-counter", "c2", state)
	c.ExpectNone(quiet)
	if got := sess.Subscriptions(); len(got) != 0 {
		t.Errorf("Subscriptions() = %v, want none", got)
	}
	ops := rec.Ops()
	if len(ops) != 1 || !errors.Is(ops[0].Err, envelope.ErrWrongID) {
		t.Errorf("ops = %+v, want one join rejected with ErrWrongID", ops)
	}

	c.Join("x-counter", "c1", state)
	c.Expect(protocol.EventRender)
	vtest.ExpectContains(t, c.HTML("c1"), "count=5")
}

func TestUnknownCommandIsRejected(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.SendRaw([]byte(`{"command":"reload","payload":{}}`))
	c.SendRaw([]byte(`not json`))
	c.ExpectNone(quiet)

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)
}

func TestJoinUnknownTag(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.Join("x-missing", "m1", h.State(nil))
	c.ExpectNone(quiet)
}

func TestUserEventExplicitArgsWin(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.Join("x-counter", "c1", h.State(map[string]any{"n": 3}))
	c.Expect(protocol.EventRender)

	c.UserEvent("c1", "inc", map[string]any{"by": "10"}, map[string]any{"by": 2})
	c.Expect(protocol.EventRender)
	vtest.ExpectContains(t, c.HTML("c1"), "count=5")
}

func TestUnchangedOutputIsNotResent(t *testing.T) {
	h := newHarness(t)
	rec := &vtest.Recorder{}
	_, c := h.Connect(server.WithMiddleware(rec.Middleware()))

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	c.UserEvent("c1", "noop", nil, nil)
	c.ExpectNone(quiet)

	ops := rec.Ops()
	if len(ops) != 2 {
		t.Fatalf("recorded %d ops, want 2", len(ops))
	}
	if ops[1].Name != "user_event" || ops[1].Target != "noop" || ops[1].Sent != 0 {
		t.Errorf("op = %+v, want user_event noop with nothing sent", ops[1])
	}
}

func TestHandlerErrorKeepsSession(t *testing.T) {
	h := newHarness(t)
	rec := &vtest.Recorder{}
	_, c := h.Connect(server.WithMiddleware(rec.Middleware()))

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	c.UserEvent("c1", "fail", nil, nil)
	c.UserEvent("c1", "missing", nil, nil)
	c.UserEvent("c9", "inc", nil, nil)
	c.ExpectNone(quiet)

	c.UserEvent("c1", "inc", nil, nil)
	c.Expect(protocol.EventRender)
	vtest.ExpectContains(t, c.HTML("c1"), "count=1")

	vtest.WaitUntil(t, func() bool { return len(rec.Ops()) == 5 })
	ops := rec.Ops()
	if !errors.Is(ops[1].Err, errHandler) {
		t.Errorf("ops[1].Err = %v, want %v", ops[1].Err, errHandler)
	}
	if !errors.Is(ops[2].Err, component.ErrUnknownHandler) {
		t.Errorf("ops[2].Err = %v, want ErrUnknownHandler", ops[2].Err)
	}
	if !errors.Is(ops[3].Err, component.ErrUnknownComponent) {
		t.Errorf("ops[3].Err = %v, want ErrUnknownComponent", ops[3].Err)
	}
}

func TestHandlerVisitFollowsRender(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	c.UserEvent("c1", "go", nil, nil)
	ev := c.Expect(protocol.EventVisit)
	if ev.Action != "push" || ev.URL != "/next" {
		t.Errorf("visit = %s %s, want push /next", ev.Action, ev.URL)
	}
}

func TestCommandsAreHandledInOrder(t *testing.T) {
	h := newHarness(t)
	rec := &vtest.Recorder{}
	_, c := h.Connect(server.WithMiddleware(rec.Middleware()))

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)
	vtest.ExpectContains(t, c.HTML("c1"), "count=0")

	// Updates without data leave the count alone, so they render nothing
	// but still compete with the commands for the event loop.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				h.Topics.Publish("count", topic.Update(nil))
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	const n = 20
	for i := 0; i < n; i++ {
		c.UserEvent("c1", "inc", nil, nil)
	}
	for i := 1; i <= n; i++ {
		c.Expect(protocol.EventRender)
		vtest.ExpectContains(t, c.HTML("c1"), fmt.Sprintf("count=%d", i))
	}

	vtest.WaitUntil(t, func() bool {
		for _, name := range rec.Names() {
			if name == "update" {
				return true
			}
		}
		return false
	})

	var commands []string
	for _, name := range rec.Names() {
		if name != "update" {
			commands = append(commands, name)
		}
	}
	if len(commands) != n+1 {
		t.Fatalf("commands = %v, want join then %d user_event", commands, n)
	}
	if commands[0] != "join" {
		t.Errorf("ops[0] = %q, want join", commands[0])
	}
	for i, name := range commands[1:] {
		if name != "user_event" {
			t.Errorf("ops[%d] = %q, want user_event", i+1, name)
		}
	}
}

func TestUpdateReachesEverySession(t *testing.T) {
	h := newHarness(t)
	_, a := h.Connect()
	_, b := h.Connect()

	a.Join("x-counter", "c1", h.State(nil))
	a.Expect(protocol.EventRender)
	b.Join("x-counter", "c1", h.State(nil))
	b.Expect(protocol.EventRender)

	if n := h.Topics.Publish("count", topic.Update(map[string]any{"n": 7})); n != 2 {
		t.Fatalf("Publish() delivered to %d sessions, want 2", n)
	}
	for _, c := range []*vtest.Client{a, b} {
		c.Expect(protocol.EventRender)
		vtest.ExpectContains(t, c.HTML("c1"), "count=7")
	}

	// Same data again renders the same output.
	h.Topics.Publish("count", topic.Update(map[string]any{"n": 7}))
	a.ExpectNone(quiet)
	b.ExpectNone(quiet)
}

func TestLeaveDestroysChildren(t *testing.T) {
	h := newHarness(t)
	sess, c := h.Connect()

	c.Join("x-list", "l1", h.State(map[string]any{"items": []any{"a", "b"}}))
	c.Expect(protocol.EventRender)
	html := c.HTML("l1")
	vtest.ExpectContains(t, html, `<ul is="x-list" id="l1"`)
	vtest.ExpectContains(t, html, `<x-counter id="a"`)
	vtest.ExpectContains(t, html, `<x-counter id="b"`)
	if !h.Topics.IsMember("count", sess.ID) {
		t.Fatal("children should subscribe the session to count")
	}

	c.Leave("l1")
	c.ExpectNone(quiet)
	vtest.WaitUntil(t, func() bool { return !h.Topics.IsMember("count", sess.ID) })

	if n := h.Topics.Publish("count", topic.Update(nil)); n != 0 {
		t.Errorf("Publish() delivered to %d sessions after leave, want 0", n)
	}

	// Leaving again is harmless.
	c.Leave("l1")
	c.Leave("a")
	c.ExpectNone(quiet)
}

func TestSelfDestroyOnJoinSendsRemove(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.Join("x-gone", "g1", h.State(nil))
	ev := c.Expect(protocol.EventRemove)
	if ev.ID != "g1" {
		t.Errorf("remove id = %q, want g1", ev.ID)
	}
	if !c.Removed("g1") {
		t.Error("client should see g1 as removed")
	}
}

func TestTopicRemove(t *testing.T) {
	h := newHarness(t)
	sess, c := h.Connect()

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	h.Topics.Publish("count", topic.Remove("c1", map[string]any{"reason": "deleted"}))
	ev := c.Expect(protocol.EventRemove)
	if ev.ID != "c1" || ev.Extra["reason"] != "deleted" {
		t.Errorf("remove = %+v, want c1 with reason", ev)
	}
	vtest.WaitUntil(t, func() bool { return len(sess.Subscriptions()) == 0 })

	// A second remove for a dead id is ignored.
	h.Topics.Publish("count", topic.Remove("c1", nil))
	c.ExpectNone(quiet)
}

func TestTopicVisit(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	visit := topic.Visit("replace", "/done")
	visit.Data["frame"] = "main"
	h.Topics.Publish("count", visit)
	ev := c.Expect(protocol.EventVisit)
	if ev.Action != "replace" || ev.URL != "/done" {
		t.Errorf("visit = %s %s, want replace /done", ev.Action, ev.URL)
	}
	if ev.Extra["frame"] != "main" || len(ev.Extra) != 1 {
		t.Errorf("visit extra = %v, want frame=main", ev.Extra)
	}
}

func TestTopicDispatchExpandsArgsPerSession(t *testing.T) {
	h := newHarness(t)
	_, a := h.Connect()
	_, b := h.Connect()
	for _, c := range []*vtest.Client{a, b} {
		c.Join("x-counter", "c1", h.State(nil))
		c.Expect(protocol.EventRender)
	}

	data := map[string]any{"set.n": 9}
	if n := h.Topics.Publish("count", topic.Dispatch("c1", "set", data)); n != 2 {
		t.Fatalf("Publish() delivered to %d sessions, want 2", n)
	}
	for _, c := range []*vtest.Client{a, b} {
		c.Expect(protocol.EventRender)
		vtest.ExpectContains(t, c.HTML("c1"), "count=9")
	}
	if len(data) != 1 || data["set.n"] != 9 {
		t.Errorf("published data changed to %v", data)
	}
}

func TestTopicDispatch(t *testing.T) {
	h := newHarness(t)
	_, c := h.Connect()

	c.Join("x-counter", "c1", h.State(map[string]any{"n": 1}))
	c.Expect(protocol.EventRender)

	h.Topics.Publish("count", topic.Dispatch("c1", "inc", map[string]any{"by": 4}))
	c.Expect(protocol.EventRender)
	vtest.ExpectContains(t, c.HTML("c1"), "count=5")

	h.Topics.Publish("count", topic.Dispatch("c2", "inc", nil))
	c.ExpectNone(quiet)
}

func TestDisconnectReleasesTopics(t *testing.T) {
	h := newHarness(t)
	var ended atomic.Bool
	sess, c := h.Connect(server.WithHooks(server.Hooks{
		OnSessionEnd: func(*server.Session) { ended.Store(true) },
	}))

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	c.Close()
	vtest.WaitUntil(t, func() bool { return sess.IsClosed() && ended.Load() })
	if h.Topics.IsMember("count", sess.ID) {
		t.Error("closed session is still a member of count")
	}
	if n := h.Topics.Publish("count", topic.Update(nil)); n != 0 {
		t.Errorf("Publish() delivered to %d sessions, want 0", n)
	}
}

func TestDeliverKeepsEveryEvent(t *testing.T) {
	h := newHarness(t)
	config := h.Config.Clone()
	config.UpdateQueueSize = 1

	var backlog []int
	sess, err := server.NewSession(vtest.NewPipe(0), h.Runtime, config, server.WithHooks(server.Hooks{
		OnUpdateBacklog: func(_ *server.Session, pending int) { backlog = append(backlog, pending) },
	}))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		sess.Deliver(topic.Event{Kind: topic.KindUpdate, Topic: "count"})
	}

	if got := sess.Pending(); got != 3 {
		t.Errorf("Pending() = %d, want 3", got)
	}
	if got := sess.Stats().PeakBacklog; got != 3 {
		t.Errorf("PeakBacklog = %d, want 3", got)
	}
	if len(backlog) != 1 || backlog[0] != 2 {
		t.Errorf("backlog hook = %v, want [2]", backlog)
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := sess.Close(); !errors.Is(err, server.ErrSessionClosed) {
		t.Errorf("second Close() error = %v, want ErrSessionClosed", err)
	}
	sess.Deliver(topic.Event{Kind: topic.KindUpdate, Topic: "count"})
	if got := sess.Pending(); got != 3 {
		t.Errorf("Pending() after close = %d, want 3", got)
	}
}

func TestBacklogIsAppliedInFull(t *testing.T) {
	h := newHarness(t)
	h.Config.UpdateQueueSize = 2
	_, c := h.Connect()

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)

	const n = 20
	for i := 0; i < n; i++ {
		h.Topics.Publish("count", topic.Dispatch("c1", "inc", nil))
	}
	var last string
	for i := 0; i < n; i++ {
		ev := c.Expect(protocol.EventRender)
		last = c.HTML(ev.ID)
	}
	vtest.ExpectContains(t, last, fmt.Sprintf("count=%d", n))
}

func TestServeTwice(t *testing.T) {
	h := newHarness(t)
	sess, _ := h.Connect()

	if err := sess.Serve(context.Background()); err == nil {
		t.Error("second Serve() should fail")
	}
}

func TestNewSessionRequiresRuntime(t *testing.T) {
	_, err := server.NewSession(vtest.NewPipe(0), &server.Runtime{}, nil)
	if !errors.Is(err, server.ErrMissingRuntime) {
		t.Errorf("NewSession() error = %v, want ErrMissingRuntime", err)
	}
}

func TestEventSentHook(t *testing.T) {
	h := newHarness(t)
	var sent atomic.Int64
	_, c := h.Connect(server.WithHooks(server.Hooks{
		OnEventSent: func(_ *server.Session, typ string, bytes int) {
			if bytes > 0 {
				sent.Add(1)
			}
		},
	}))

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect(protocol.EventRender)
	vtest.WaitUntil(t, func() bool { return sent.Load() == 2 })
}
