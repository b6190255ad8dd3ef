package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/protocol"
)

type commandFunc func(s *Session, ctx context.Context, cmd *protocol.Command) error

// commandTable is the closed set of inbound commands.
var commandTable = map[protocol.CommandKind]commandFunc{
	protocol.CommandJoin:      (*Session).join,
	protocol.CommandUserEvent: (*Session).userEvent,
	protocol.CommandLeave:     (*Session).leave,
}

// handleMessage decodes and runs one inbound command. Only a transport
// failure is returned; everything else is a rejection of this command.
func (s *Session) handleMessage(ctx context.Context, msg []byte) error {
	s.commandCount.Add(1)

	cmd, err := protocol.DecodeCommand(msg)
	if err != nil {
		s.reject(&CommandError{SessionID: s.ID, Command: "decode", Err: err})
		return nil
	}

	op := &Op{SessionID: s.ID, Name: cmd.Kind.String(), ID: cmd.ID()}
	switch {
	case cmd.Join != nil:
		op.Target = cmd.Join.TagName
	case cmd.UserEvent != nil:
		op.Target = cmd.UserEvent.Name
	}

	fn, ok := commandTable[cmd.Kind]
	if !ok {
		return s.settle(op, fmt.Errorf("%w: %s", protocol.ErrUnrecognizedCommand, cmd.Kind))
	}
	err = s.run(ctx, op, func(ctx context.Context) error {
		return fn(s, ctx, cmd)
	})
	return s.settle(op, err)
}

// join verifies the state envelope, gets or creates the component and
// sends its full output. Joining a live component re-sends nothing unless
// its output changed.
func (s *Session) join(ctx context.Context, cmd *protocol.Command) error {
	p := cmd.Join
	s.logger.Debug("join", "tag", p.TagName, "id", p.ID)

	state, err := s.rt.Signer.DecodeFor(p.State, p.ID)
	if err != nil {
		return err
	}

	_, existed := s.tree.Get(p.ID)
	if _, err := s.tree.GetOrCreate(ctx, p.TagName, p.ID, component.Args(state)); err != nil {
		if errors.Is(err, component.ErrDestroyed) {
			s.logger.Debug("component removed itself during mount", "tag", p.TagName, "id", p.ID)
			if err := s.send(protocol.Remove(p.ID, nil)); err != nil {
				return err
			}
			return s.flushVisits()
		}
		return err
	}

	diff, changed, err := s.tree.RenderDiff(ctx, p.ID)
	if err != nil {
		if !existed {
			s.tree.Destroy(p.ID)
		}
		return err
	}
	return s.emit(component.Result{ID: p.ID, Diff: diff, Changed: changed})
}

// userEvent runs a handler with the client's form data overridden by the
// arguments bound in markup.
func (s *Session) userEvent(ctx context.Context, cmd *protocol.Command) error {
	p := cmd.UserEvent
	s.logger.Debug("user_event", "id", p.ID, "name", p.Name)

	args, err := protocol.MergeArgs(p.ImplicitArgs, p.ExplicitArgs)
	if err != nil {
		return err
	}
	res, err := s.tree.DispatchUserEvent(ctx, p.ID, p.Name, args)
	if err != nil {
		return err
	}
	return s.emit(res)
}

// leave destroys a component and its descendants. Leaving an id that is
// already gone is not an error: the client sends leave for every element
// it drops, including children of a removed parent.
func (s *Session) leave(ctx context.Context, cmd *protocol.Command) error {
	id := cmd.Leave.ID
	removed := s.tree.Destroy(id)
	s.logger.Debug("leave", "id", id, "removed", len(removed))
	return nil
}
