package server_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-dev/reactor/pkg/server"
	"github.com/vango-dev/reactor/pkg/vtest"
)

func TestManagerEnforcesLimit(t *testing.T) {
	h := newHarness(t)
	sm := server.NewSessionManager(h.Runtime, h.Config, 1, nil)

	first, err := sm.Create(vtest.NewPipe(0))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := sm.CheckCapacity(); !errors.Is(err, server.ErrMaxSessionsReached) {
		t.Errorf("CheckCapacity() = %v, want ErrMaxSessionsReached", err)
	}
	if _, err := sm.Create(vtest.NewPipe(0)); !errors.Is(err, server.ErrMaxSessionsReached) {
		t.Errorf("Create() error = %v, want ErrMaxSessionsReached", err)
	}

	rejected := vtest.NewPipe(0)
	if err := sm.Serve(context.Background(), rejected); !errors.Is(err, server.ErrMaxSessionsReached) {
		t.Errorf("Serve() error = %v, want ErrMaxSessionsReached", err)
	}
	select {
	case <-rejected.Closed():
	default:
		t.Error("rejected transport should be closed")
	}

	if got := sm.Get(first.ID); got != first {
		t.Errorf("Get(%s) = %v, want the first session", first.ID, got)
	}
	if got := sm.Stats(); got.Active != 1 || got.Peak != 1 || got.TotalCreated != 1 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestManagerServeUnregisters(t *testing.T) {
	h := newHarness(t)
	sm := server.NewSessionManager(h.Runtime, h.Config, 0, nil)
	rec := &vtest.Recorder{}
	sm.Use(rec.Middleware())

	pipe := vtest.NewPipe(0)
	done := make(chan error, 1)
	go func() { done <- sm.Serve(context.Background(), pipe) }()

	c := vtest.NewClient(t, pipe)
	c.Expect("components")
	vtest.WaitUntil(t, func() bool { return sm.Count() == 1 })

	c.Join("x-counter", "c1", h.State(nil))
	c.Expect("render")

	c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil", err)
		}
	case <-time.After(vtest.DefaultTimeout):
		t.Fatal("Serve() did not return after disconnect")
	}

	if sm.Count() != 0 {
		t.Errorf("Count() = %d after disconnect, want 0", sm.Count())
	}
	if got := sm.Stats().TotalClosed; got != 1 {
		t.Errorf("TotalClosed = %d, want 1", got)
	}
	if names := rec.Names(); len(names) != 1 || names[0] != "join" {
		t.Errorf("recorded ops = %v, want [join]", names)
	}
}

func TestManagerCloseAll(t *testing.T) {
	h := newHarness(t)
	sm := server.NewSessionManager(h.Runtime, h.Config, 0, nil)

	var done []chan error
	for i := 0; i < 3; i++ {
		pipe := vtest.NewPipe(0)
		ch := make(chan error, 1)
		go func() { ch <- sm.Serve(context.Background(), pipe) }()
		done = append(done, ch)
	}
	vtest.WaitUntil(t, func() bool { return sm.Count() == 3 })

	if err := sm.CloseAll(); err != nil {
		t.Errorf("CloseAll() error = %v", err)
	}
	for _, ch := range done {
		select {
		case <-ch:
		case <-time.After(vtest.DefaultTimeout):
			t.Fatal("session did not stop")
		}
	}
	if sm.Count() != 0 {
		t.Errorf("Count() = %d, want 0", sm.Count())
	}
}
