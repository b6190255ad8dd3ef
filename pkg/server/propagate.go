package server

import (
	"context"
	"errors"

	"go.uber.org/multierr"

	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/topic"
)

// handleTopicEvent applies one delivered topic event to the tree.
func (s *Session) handleTopicEvent(ctx context.Context, ev topic.Event) error {
	op := &Op{SessionID: s.ID, Name: ev.Kind.String(), Target: ev.Topic, ID: ev.ID}
	err := s.run(ctx, op, func(ctx context.Context) error {
		return s.propagate(ctx, ev)
	})
	return s.settle(op, err)
}

func (s *Session) propagate(ctx context.Context, ev topic.Event) error {
	switch ev.Kind {
	case topic.KindUpdate:
		s.logger.Debug("update", "topic", ev.Topic)
		var errs error
		for _, res := range s.tree.PropagateUpdate(ctx, ev) {
			if err := s.emit(res); err != nil {
				var we *writeError
				if errors.As(err, &we) {
					return err
				}
				errs = multierr.Append(errs, err)
			}
		}
		return errs

	case topic.KindRemove:
		if _, ok := s.tree.Get(ev.ID); !ok {
			return nil
		}
		s.tree.Destroy(ev.ID)
		return s.send(protocol.Remove(ev.ID, ev.Data))

	case topic.KindVisit:
		visit := protocol.Visit(ev.String("action"), ev.String("url"))
		for k, v := range ev.Data {
			if k == "action" || k == "url" {
				continue
			}
			if visit.Extra == nil {
				visit.Extra = make(map[string]any)
			}
			visit.Extra[k] = v
		}
		return s.send(visit)

	case topic.KindDispatch:
		if _, ok := s.tree.Get(ev.ID); !ok {
			return nil
		}
		// Data is shared by every subscriber; expanding it gives this
		// session its own copy.
		args, err := protocol.MergeArgs(ev.Data, nil)
		if err != nil {
			return err
		}
		res, err := s.tree.DispatchUserEvent(ctx, ev.ID, ev.Name, args)
		if err != nil {
			return err
		}
		return s.emit(res)
	}

	s.logger.Warn("unknown topic event kind", "kind", ev.Kind, "topic", ev.Topic)
	return nil
}
