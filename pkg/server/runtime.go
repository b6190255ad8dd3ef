package server

import (
	"github.com/vango-dev/reactor/pkg/component"
	"github.com/vango-dev/reactor/pkg/envelope"
	"github.com/vango-dev/reactor/pkg/topic"
)

// Runtime bundles the collaborators shared by every session of a process.
// It is created at startup and outlives all sessions.
type Runtime struct {
	Topics     *topic.Registry
	Components *component.Registry
	Signer     *envelope.Signer
	Renderer   component.Renderer
	Differ     component.Differ
}

func (rt *Runtime) validate() error {
	if rt == nil || rt.Topics == nil || rt.Components == nil || rt.Signer == nil ||
		rt.Renderer == nil || rt.Differ == nil {
		return ErrMissingRuntime
	}
	return nil
}
