package component

import (
	"encoding/json"
	"strconv"

	"github.com/vango-dev/reactor/pkg/topic"
)

// Args is the untyped argument map used for construction arguments,
// handler keyword arguments and serialized state.
type Args map[string]any

// String returns the string at key, or def if missing or not a string.
func (a Args) String(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the boolean at key, or def. The strings "true", "on" and
// "1" (as sent by HTML form controls) count as true.
func (a Args) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "on", "1":
			return true
		case "false", "off", "0", "":
			return false
		}
	}
	return def
}

// Int returns the integer at key, or def. JSON numbers and numeric strings
// are converted.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Merge returns a new map holding a's entries overridden by other's.
func (a Args) Merge(other Args) Args {
	out := make(Args, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Component is the capability set every hosted component provides.
// Implementations embed Base, which supplies the defaults and the
// unexported method that ties the component to its tree slot.
type Component interface {
	// Mount initializes the component from its construction arguments.
	// It may subscribe to topics, create children, or call ctx.Destroy to
	// signal that the component should not exist.
	Mount(ctx *Context, args Args) error

	// Serialize returns the construction arguments that reproduce the
	// component's client-visible state. They are signed into the state
	// envelope at render time.
	Serialize() Args

	// Update reacts to a broadcast event on one of the component's
	// topics. Returning nil re-renders; calling ctx.Destroy removes.
	Update(ctx *Context, ev topic.Event) error

	core() *Base
}

// Base is the default implementation composed into every component.
type Base struct {
	id      string
	tag     string
	extends string
}

// ID returns the component's session-unique id.
func (b *Base) ID() string { return b.id }

// Tag returns the registered tag name.
func (b *Base) Tag() string { return b.tag }

// Extends returns the declared supertype, or "".
func (b *Base) Extends() string { return b.extends }

// Mount does nothing.
func (b *Base) Mount(ctx *Context, args Args) error { return nil }

// Serialize returns only the id.
func (b *Base) Serialize() Args { return Args{"id": b.id} }

// Update does nothing, so the component is simply re-rendered.
func (b *Base) Update(ctx *Context, ev topic.Event) error { return nil }

func (b *Base) core() *Base { return b }

// Identity returns the id, tag and supertype of c.
func Identity(c Component) (id, tag, extends string) {
	b := c.core()
	return b.id, b.tag, b.extends
}
