package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/vtest"
)

func newTestServer(t *testing.T, config *server.ServerConfig) (*server.Server, *vtest.Harness, *httptest.Server) {
	t.Helper()
	h := newHarness(t)
	srv := server.New(config, h.Runtime)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Sessions().CloseAll()
		ts.Close()
	})
	return srv, h, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(vtest.DefaultTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var ev protocol.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv, h, ts := newTestServer(t, nil)
	conn := dial(t, ts)

	if ev := readEvent(t, conn); ev.Type != protocol.EventComponents {
		t.Fatalf("first event = %q, want components", ev.Type)
	}

	msg, err := protocol.EncodeCommand(protocol.CommandJoin, protocol.JoinPayload{
		TagName: "x-counter",
		ID:      "c1",
		State:   h.State(map[string]any{"n": 2}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Type != protocol.EventRender || ev.ID != "c1" {
		t.Fatalf("event = %+v, want render c1", ev)
	}
	script, ok := ev.Diff.([]any)
	if !ok || len(script) != 1 {
		t.Fatalf("diff = %#v, want a single insertion", ev.Diff)
	}
	vtest.ExpectContains(t, script[0].(string), "count=2")

	if got := srv.Sessions().Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	conn.Close()
	vtest.WaitUntil(t, func() bool { return srv.Sessions().Count() == 0 })
	if members := h.Topics.Members("count"); len(members) != 0 {
		t.Errorf("count members after disconnect = %v", members)
	}
}

func TestWebSocketCapacity(t *testing.T) {
	config := server.DefaultServerConfig().WithMaxSessions(1)
	_, _, ts := newTestServer(t, config)

	conn := dial(t, ts)
	readEvent(t, conn)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second Dial() should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("Dial() with a foreign origin should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestHealthz(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestRouterMountsPages(t *testing.T) {
	srv, _, ts := newTestServer(t, nil)
	srv.Router().Get("/page", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "page")
	})

	resp, err := http.Get(ts.URL + "/page")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
