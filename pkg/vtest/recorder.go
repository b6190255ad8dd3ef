package vtest

import (
	"context"
	"sync"

	"github.com/vango-dev/reactor/pkg/server"
)

// RecordedOp is an op as seen after it completed.
type RecordedOp struct {
	Name   string
	Target string
	ID     string
	Sent   int
	Err    error
}

// Recorder records ops. Use Middleware to install it.
type Recorder struct {
	mu  sync.Mutex
	ops []RecordedOp
}

// Middleware returns the recording middleware.
func (r *Recorder) Middleware() server.Middleware {
	return func(next server.HandlerFunc) server.HandlerFunc {
		return func(ctx context.Context, op *server.Op) error {
			err := next(ctx, op)
			r.mu.Lock()
			r.ops = append(r.ops, RecordedOp{
				Name:   op.Name,
				Target: op.Target,
				ID:     op.ID,
				Sent:   op.Sent,
				Err:    err,
			})
			r.mu.Unlock()
			return err
		}
	}
}

// Ops returns a copy of the recorded ops.
func (r *Recorder) Ops() []RecordedOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedOp(nil), r.ops...)
}

// Names returns the recorded op names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ops))
	for i, op := range r.ops {
		out[i] = op.Name
	}
	return out
}
