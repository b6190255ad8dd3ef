package component

import (
	"context"
	"log/slog"
	"sort"
)

// Context is handed to Mount, Update and handlers. It is bound to one
// component slot and is only valid for the duration of the call.
type Context struct {
	std  context.Context
	tree *Tree
	node *node
}

// Context returns the standard context of the command being processed.
// Data-store calls made from component code should use it.
func (c *Context) Context() context.Context {
	return c.std
}

// ID returns the id of the component the context is bound to.
func (c *Context) ID() string {
	return c.node.id
}

// Logger returns a logger scoped to the component.
func (c *Context) Logger() *slog.Logger {
	return c.tree.logger.With("tag", c.node.tag, "id", c.node.id)
}

// Subscribe subscribes the component to topic. Redundant calls are no-ops.
func (c *Context) Subscribe(topic string) {
	c.tree.subscribe(c.node, topic)
}

// Unsubscribe removes the component's subscription to topic.
func (c *Context) Unsubscribe(topic string) {
	c.tree.unsubscribe(c.node, topic)
}

// Subscriptions returns the component's topics, sorted.
func (c *Context) Subscriptions() []string {
	out := make([]string, 0, len(c.node.topics))
	for t := range c.node.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Destroy requests removal of the component once the current call
// returns. During Mount this means the component never existed.
func (c *Context) Destroy() {
	c.node.destroyRequested = true
}

// Visit asks the client to navigate.
func (c *Context) Visit(action, url string) {
	c.tree.host.Visit(action, url)
}

// Child gets or creates a component owned by this one. It returns
// ErrDestroyed if the child removed itself while mounting.
func (c *Context) Child(tag, id string, args Args) (Component, error) {
	if n, ok := c.tree.nodes[id]; ok {
		if n.tag != tag {
			return nil, &Error{Op: "child", Tag: tag, ID: id, Err: ErrDuplicateID}
		}
		return n.comp, nil
	}
	def, ok := c.tree.registry.Lookup(tag)
	if !ok {
		return nil, &Error{Op: "child", Tag: tag, ID: id, Err: ErrUnknownType}
	}
	return c.tree.create(c.std, def, id, args, c.node.id)
}
