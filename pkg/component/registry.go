package component

import (
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc handles a named user event on a component.
type HandlerFunc func(c Component, ctx *Context, args Args) error

// Definition describes a component type.
type Definition struct {
	// Tag is the custom element name, e.g. "x-todo-item".
	Tag string

	// Extends is the built-in element the component customizes, e.g. "li".
	// Empty means an autonomous custom element.
	Extends string

	// New returns a fresh, unmounted instance.
	New func() Component

	// Handlers maps user event names to handlers.
	Handlers map[string]HandlerFunc
}

// Define builds a Definition from a typed constructor and typed handlers.
func Define[T Component](tag, extends string, newFn func() T, handlers map[string]func(T, *Context, Args) error) Definition {
	def := Definition{
		Tag:      tag,
		Extends:  extends,
		Handlers: make(map[string]HandlerFunc, len(handlers)),
	}
	if newFn != nil {
		def.New = func() Component { return newFn() }
	}
	for name, h := range handlers {
		h := h
		def.Handlers[name] = func(c Component, ctx *Context, args Args) error {
			typed, ok := c.(T)
			if !ok {
				return fmt.Errorf("component: handler %q: unexpected type %T", name, c)
			}
			return h(typed, ctx, args)
		}
	}
	return def
}

// Registry maps tag names to definitions. It is populated at startup and
// read concurrently by every session.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def.
func (r *Registry) Register(def Definition) error {
	if def.Tag == "" || def.New == nil {
		return fmt.Errorf("%w: tag %q", ErrInvalidDefinition, def.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Tag]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, def.Tag)
	}
	if def.Handlers == nil {
		def.Handlers = map[string]HandlerFunc{}
	}
	r.defs[def.Tag] = def
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the definition for tag.
func (r *Registry) Lookup(tag string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[tag]
	return def, ok
}

// Types returns the tag -> supertype mapping advertised in the handshake.
func (r *Registry) Types() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.defs))
	for tag, def := range r.defs {
		out[tag] = def.Extends
	}
	return out
}

// Tags returns the sorted registered tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.defs))
	for tag := range r.defs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
