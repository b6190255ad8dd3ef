package component

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/vango-dev/reactor/pkg/topic"
)

// Host receives the side effects a tree cannot perform itself. The
// owning session implements it.
type Host interface {
	// JoinTopic is called when the first component of the tree subscribes
	// to topic.
	JoinTopic(topic string)

	// LeaveTopic is called when the last subscribed component goes away.
	LeaveTopic(topic string)

	// Visit queues a navigation instruction for the client.
	Visit(action, url string)
}

// Renderer produces the serialized output of a component, including its
// wrapping element. Nested components are rendered through m.
type Renderer interface {
	Render(ctx context.Context, c Component, m Mounter) (string, error)
}

// Mounter gets or creates a child of the component being rendered and
// returns the child's output.
type Mounter interface {
	MountChild(tag, id string, args Args) (string, error)
}

// Differ compares two outputs of the same component. It returns the diff
// artifact and whether anything changed.
type Differ interface {
	Diff(old, new string) (any, bool)
}

// Result is the outcome of one component's re-render.
type Result struct {
	ID string

	// Diff is the artifact to send; only meaningful when Changed.
	Diff    any
	Changed bool

	// Removed means the component destroyed itself and was removed.
	Removed bool

	// Err is set when the component's handler or render failed. The
	// component stays in the tree unchanged.
	Err error
}

type node struct {
	id       string
	tag      string
	def      Definition
	comp     Component
	parent   string
	children []string
	topics   map[string]struct{}

	// last is the output most recently sent to the client.
	last string

	destroyRequested bool
}

// TreeConfig holds the collaborators of a Tree.
type TreeConfig struct {
	Registry *Registry
	Renderer Renderer
	Differ   Differ
	Host     Host
	Logger   *slog.Logger
}

// Tree is the per-connection component arena.
type Tree struct {
	registry *Registry
	renderer Renderer
	differ   Differ
	host     Host
	logger   *slog.Logger

	nodes  map[string]*node
	topics map[string]map[string]struct{}
}

// NewTree creates an empty tree.
func NewTree(cfg TreeConfig) *Tree {
	t := &Tree{
		registry: cfg.Registry,
		renderer: cfg.Renderer,
		differ:   cfg.Differ,
		host:     cfg.Host,
		logger:   cfg.Logger,
		nodes:    make(map[string]*node),
		topics:   make(map[string]map[string]struct{}),
	}
	if t.registry == nil {
		t.registry = NewRegistry()
	}
	if t.host == nil {
		t.host = nopHost{}
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// GetOrCreate returns the component at id, creating it from tag's
// definition if absent. An existing component is returned unchanged and
// args are ignored.
func (t *Tree) GetOrCreate(ctx context.Context, tag, id string, args Args) (Component, error) {
	if n, ok := t.nodes[id]; ok {
		if n.tag != tag {
			return nil, &Error{Op: "join", Tag: tag, ID: id, Err: ErrDuplicateID}
		}
		return n.comp, nil
	}

	def, ok := t.registry.Lookup(tag)
	if !ok {
		return nil, &Error{Op: "join", Tag: tag, ID: id, Err: ErrUnknownType}
	}
	return t.create(ctx, def, id, args, "")
}

// create instantiates and mounts a component. A failed or self-destroyed
// mount is rolled back together with any subscriptions and children it
// made.
func (t *Tree) create(ctx context.Context, def Definition, id string, args Args, parent string) (Component, error) {
	comp := def.New()
	b := comp.core()
	b.id = id
	b.tag = def.Tag
	b.extends = def.Extends

	n := &node{
		id:     id,
		tag:    def.Tag,
		def:    def,
		comp:   comp,
		parent: parent,
		topics: make(map[string]struct{}),
	}
	t.nodes[id] = n
	if p, ok := t.nodes[parent]; ok {
		p.children = append(p.children, id)
	}

	if args == nil {
		args = Args{}
	}
	err := t.guard(func() error {
		return comp.Mount(t.contextFor(ctx, n), args)
	})
	if err != nil {
		t.Destroy(id)
		return nil, &CollaboratorError{Op: "mount", ID: id, Err: err}
	}
	if n.destroyRequested {
		t.Destroy(id)
		return nil, &Error{Op: "mount", Tag: def.Tag, ID: id, Err: ErrDestroyed}
	}
	return comp, nil
}

// RenderDiff renders the component at id and diffs it against the output
// last sent. The new output becomes the baseline whether or not it
// changed.
func (t *Tree) RenderDiff(ctx context.Context, id string) (any, bool, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, false, &Error{Op: "render", ID: id, Err: ErrUnknownComponent}
	}

	out, err := t.render(ctx, n)
	if err != nil {
		return nil, false, err
	}

	diff, changed := t.differ.Diff(n.last, out)
	if changed {
		t.syncAncestors(n, n.last, out)
	}
	n.last = out
	return diff, changed, nil
}

// Render returns the full output of the component at id and makes it the
// baseline. Pages use it for the first, server-side render.
func (t *Tree) Render(ctx context.Context, id string) (string, error) {
	n, ok := t.nodes[id]
	if !ok {
		return "", &Error{Op: "render", ID: id, Err: ErrUnknownComponent}
	}
	out, err := t.render(ctx, n)
	if err != nil {
		return "", err
	}
	t.syncAncestors(n, n.last, out)
	n.last = out
	return out, nil
}

// syncAncestors replaces a nested component's previous output inside the
// baselines of its ancestors, which the client updates in place when the
// component renders or is removed on its own.
func (t *Tree) syncAncestors(n *node, old, new string) {
	if old == "" {
		return
	}
	for p := t.nodes[n.parent]; p != nil; p = t.nodes[p.parent] {
		p.last = strings.Replace(p.last, old, new, 1)
	}
}

func (t *Tree) render(ctx context.Context, n *node) (string, error) {
	var out string
	err := t.guard(func() error {
		var err error
		out, err = t.renderer.Render(ctx, n.comp, &mounter{tree: t, std: ctx, parent: n})
		return err
	})
	if err != nil {
		return "", &CollaboratorError{Op: "render", ID: n.id, Err: err}
	}
	return out, nil
}

// DispatchUserEvent runs handler name on the component at id and renders
// the result.
func (t *Tree) DispatchUserEvent(ctx context.Context, id, name string, args Args) (Result, error) {
	n, ok := t.nodes[id]
	if !ok {
		return Result{}, &Error{Op: "user_event", ID: id, Err: ErrUnknownComponent}
	}
	h, ok := n.def.Handlers[name]
	if !ok {
		return Result{}, &Error{Op: "user_event", Tag: n.tag, ID: id, Err: ErrUnknownHandler}
	}

	if args == nil {
		args = Args{}
	}
	err := t.guard(func() error {
		return h(n.comp, t.contextFor(ctx, n), args)
	})
	if err != nil {
		n.destroyRequested = false
		return Result{}, &CollaboratorError{Op: "user_event " + name, ID: id, Err: err}
	}
	return t.finish(ctx, n), nil
}

// PropagateUpdate runs the update handler of every component subscribed
// to ev.Topic and returns one result per affected component. Components
// removed earlier in the same pass are skipped.
func (t *Tree) PropagateUpdate(ctx context.Context, ev topic.Event) []Result {
	subscribed := t.topics[ev.Topic]
	if len(subscribed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(subscribed))
	for id := range subscribed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok {
			continue
		}
		err := t.guard(func() error {
			return n.comp.Update(t.contextFor(ctx, n), ev)
		})
		if err != nil {
			n.destroyRequested = false
			results = append(results, Result{ID: id, Err: &CollaboratorError{Op: "update", ID: id, Err: err}})
			continue
		}
		results = append(results, t.finish(ctx, n))
	}
	return results
}

// finish applies a pending self-destruction or renders.
func (t *Tree) finish(ctx context.Context, n *node) Result {
	if n.destroyRequested {
		t.Destroy(n.id)
		return Result{ID: n.id, Removed: true}
	}
	diff, changed, err := t.RenderDiff(ctx, n.id)
	if err != nil {
		return Result{ID: n.id, Err: err}
	}
	return Result{ID: n.id, Diff: diff, Changed: changed}
}

// Destroy removes the component at id and every component it owns,
// releasing their subscriptions. It returns the removed ids, children
// before parents. Destroying an unknown id is a no-op.
func (t *Tree) Destroy(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}

	t.syncAncestors(n, n.last, "")
	var removed []string
	t.destroySubtree(n, &removed)

	if p, ok := t.nodes[n.parent]; ok {
		p.children = removeID(p.children, id)
	}
	return removed
}

func (t *Tree) destroySubtree(n *node, removed *[]string) {
	for _, childID := range n.children {
		if child, ok := t.nodes[childID]; ok {
			t.destroySubtree(child, removed)
		}
	}
	for topicName := range n.topics {
		t.unsubscribe(n, topicName)
	}
	delete(t.nodes, n.id)
	*removed = append(*removed, n.id)
}

// Get returns the live component at id.
func (t *Tree) Get(id string) (Component, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return n.comp, true
}

// Len returns the number of live components.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// IDs returns the sorted ids of all live components.
func (t *Tree) IDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Children returns the ids owned by id, in creation order.
func (t *Tree) Children(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}

// Parent returns the id of the owner of id, or "" for a top-level component.
func (t *Tree) Parent(id string) string {
	if n, ok := t.nodes[id]; ok {
		return n.parent
	}
	return ""
}

// Topics returns the sorted topics at least one component subscribes to.
func (t *Tree) Topics() []string {
	out := make([]string, 0, len(t.topics))
	for name := range t.topics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribers returns the sorted ids subscribed to topic.
func (t *Tree) Subscribers(topicName string) []string {
	set := t.topics[topicName]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Discard drops every component without notifying the host. The owner
// releases registry memberships itself on teardown.
func (t *Tree) Discard() {
	t.nodes = make(map[string]*node)
	t.topics = make(map[string]map[string]struct{})
}

func (t *Tree) subscribe(n *node, topicName string) {
	if _, ok := n.topics[topicName]; ok {
		return
	}
	n.topics[topicName] = struct{}{}

	set, ok := t.topics[topicName]
	if !ok {
		set = make(map[string]struct{})
		t.topics[topicName] = set
		t.host.JoinTopic(topicName)
	}
	set[n.id] = struct{}{}
}

func (t *Tree) unsubscribe(n *node, topicName string) {
	if _, ok := n.topics[topicName]; !ok {
		return
	}
	delete(n.topics, topicName)

	set := t.topics[topicName]
	delete(set, n.id)
	if len(set) == 0 {
		delete(t.topics, topicName)
		t.host.LeaveTopic(topicName)
	}
}

func (t *Tree) contextFor(ctx context.Context, n *node) *Context {
	return &Context{std: ctx, tree: t, node: n}
}

// guard runs fn, converting a panic into a *PanicError.
func (t *Tree) guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			t.logger.Error("component panic", "panic", r, "stack", string(stack))
			err = &PanicError{Value: r, Stack: stack}
		}
	}()
	return fn()
}

type mounter struct {
	tree   *Tree
	std    context.Context
	parent *node
}

// MountChild gets or creates the child and renders it. A child that
// destroyed itself while mounting renders as nothing. The rendered output
// becomes the child's baseline since the client receives it inline.
func (m *mounter) MountChild(tag, id string, args Args) (string, error) {
	ctx := m.tree.contextFor(m.std, m.parent)
	if _, err := ctx.Child(tag, id, args); err != nil {
		if errors.Is(err, ErrDestroyed) {
			return "", nil
		}
		return "", err
	}

	n := m.tree.nodes[id]
	out, err := m.tree.render(m.std, n)
	if err != nil {
		return "", err
	}
	n.last = out
	return out, nil
}

type nopHost struct{}

func (nopHost) JoinTopic(string) {}

func (nopHost) LeaveTopic(string) {}

func (nopHost) Visit(string, string) {}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
