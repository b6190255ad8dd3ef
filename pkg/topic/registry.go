package topic

import (
	"log/slog"
	"sort"
	"sync"
)

// Subscriber is an endpoint that can receive published events. In this
// module the subscriber is a connection's session.
type Subscriber interface {
	// SubscriberID returns a process-unique identifier. Two Subscriber
	// values with the same id are treated as the same member.
	SubscriberID() string

	// Deliver hands an event to the subscriber. It must not block on the
	// subscriber's own processing.
	Deliver(ev Event)
}

// Observer is notified after every publish with the number of members the
// event was delivered to.
type Observer func(topic string, ev Event, delivered int)

// Registry maps topic names to their member sets. The zero value is not
// usable; call NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*entry

	observer Observer
	logger   *slog.Logger
}

type entry struct {
	mu      sync.RWMutex
	members map[string]Subscriber
	// dead is set when the entry has been collected; joiners that raced
	// with collection retry against a fresh entry.
	dead bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver installs a publish observer, typically a metrics recorder.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		topics: make(map[string]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "topic_registry")
	return r
}

// Join adds sub to topic. It reports whether sub was newly added; a
// redundant join is a no-op.
func (r *Registry) Join(topic string, sub Subscriber) bool {
	id := sub.SubscriberID()
	for {
		e := r.entryFor(topic)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		_, exists := e.members[id]
		if !exists {
			e.members[id] = sub
		}
		e.mu.Unlock()

		if !exists {
			r.logger.Debug("subscribe", "topic", topic, "subscriber", id)
		}
		return !exists
	}
}

// Leave removes sub from topic. It reports whether sub was a member; a
// redundant leave is a no-op. A topic whose member set becomes empty is
// collected.
func (r *Registry) Leave(topic string, sub Subscriber) bool {
	id := sub.SubscriberID()

	r.mu.RLock()
	e := r.topics[topic]
	r.mu.RUnlock()
	if e == nil {
		return false
	}

	e.mu.Lock()
	_, existed := e.members[id]
	delete(e.members, id)
	empty := len(e.members) == 0
	e.mu.Unlock()

	if existed {
		r.logger.Debug("unsubscribe", "topic", topic, "subscriber", id)
	}
	if empty {
		r.collect(topic, e)
	}
	return existed
}

// Publish delivers ev to every current member of topic and returns the
// number of deliveries. ev.Topic is overwritten with topic.
func (r *Registry) Publish(topic string, ev Event) int {
	ev.Topic = topic

	r.mu.RLock()
	e := r.topics[topic]
	r.mu.RUnlock()

	var snapshot []Subscriber
	if e != nil {
		e.mu.RLock()
		snapshot = make([]Subscriber, 0, len(e.members))
		for _, sub := range e.members {
			snapshot = append(snapshot, sub)
		}
		e.mu.RUnlock()
	}

	for _, sub := range snapshot {
		sub.Deliver(ev)
	}

	if r.observer != nil {
		r.observer(topic, ev, len(snapshot))
	}
	return len(snapshot)
}

// IsMember reports whether the subscriber with id is a member of topic.
func (r *Registry) IsMember(topic, id string) bool {
	r.mu.RLock()
	e := r.topics[topic]
	r.mu.RUnlock()
	if e == nil {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.members[id]
	return ok
}

// Members returns the sorted subscriber ids of topic.
func (r *Registry) Members(topic string) []string {
	r.mu.RLock()
	e := r.topics[topic]
	r.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.mu.RLock()
	ids := make([]string, 0, len(e.members))
	for id := range e.members {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Topics returns the sorted names of all topics with at least one member.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.topics))
	for name := range r.topics {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Close drops every topic. Subsequent publishes deliver nothing until new
// joins happen.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.topics {
		e.mu.Lock()
		e.dead = true
		e.mu.Unlock()
		delete(r.topics, name)
	}
}

// entryFor returns the live entry for topic, creating it if needed.
func (r *Registry) entryFor(topic string) *entry {
	r.mu.RLock()
	e := r.topics[topic]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.topics[topic]; e == nil {
		e = &entry{members: make(map[string]Subscriber)}
		r.topics[topic] = e
	}
	return e
}

// collect removes an empty entry from the map. The emptiness check is
// repeated under both locks since a join may have slipped in.
func (r *Registry) collect(topic string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.members) == 0 && r.topics[topic] == e {
		e.dead = true
		delete(r.topics, topic)
	}
}
