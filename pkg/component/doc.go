// Package component defines server-side components and the per-connection
// tree that hosts them.
//
// # Components
//
// A component is any type that embeds Base and implements Mount. Base
// supplies default Serialize and Update implementations that a component
// may override. Event handlers are not methods looked up by name; they are
// listed in the component's Definition and registered explicitly:
//
//	reg := component.NewRegistry()
//	reg.MustRegister(component.Define("x-counter", "div",
//	    func() *Counter { return &Counter{} },
//	    map[string]func(*Counter, *component.Context, component.Args) error{
//	        "inc": (*Counter).Inc,
//	    },
//	))
//
// # Tree
//
// Tree is an arena keyed by component id. Parent and child edges are ids,
// never pointers, so destroying a component is removing its id and the ids
// of its subtree. Ids are unique per tree across all tags.
//
// A Tree is owned by exactly one goroutine (the session's event loop) and
// performs no locking of its own.
package component
