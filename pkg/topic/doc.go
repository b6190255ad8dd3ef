// Package topic implements the process-wide fan-out directory that maps
// topic names to subscriber endpoints.
//
// A Registry is created once at process start and injected into every
// session. Sessions join and leave topics on behalf of the components they
// host; data-mutation code elsewhere in the process publishes events into
// topics without knowing who is listening.
//
// # Delivery
//
// Publish takes a snapshot of a topic's membership under that topic's own
// lock and delivers outside of it. Each subscriber present in the snapshot
// receives the event exactly once. A subscriber that joins while a publish
// is in flight either appears in the snapshot or not; it is never delivered
// twice. Publishing to a topic with no members is a silent no-op.
//
// # Locking
//
// The registry map is guarded by one RWMutex that is only write-locked to
// create or collect a topic entry. Membership changes and publish snapshots
// lock the individual topic entry, so unrelated topics never contend.
package topic
