package msgq

import (
	"fmt"
	"sync"

	"github.com/sliderule-earth/sliderule-core/pkg/dictionary"
)

// Registry is a named collection of Queues, backed by a
// dictionary.Dictionary the same way pkg/recordobject keeps its record
// definitions — named, process-wide, shared-by-reference resources.
type Registry struct {
	mu     sync.Mutex
	queues *dictionary.Dictionary[*Queue]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: dictionary.New[*Queue](dictionary.DefaultHashSize, dictionary.DefaultLoadFactor)}
}

// global is the process-wide registry used by the package-level
// Create/Lookup/Publish/Subscribe helpers.
var global = NewRegistry()

// Create registers a new queue named name with the given ring depth
// (Keys.StandardQueueDepth if depth <= 0) in the global Registry.
func Create(name string, depth int) (*Queue, error) { return global.Create(name, depth) }

// Lookup returns the named queue from the global Registry.
func Lookup(name string) (*Queue, error) { return global.Lookup(name) }

// CreateOrLookup returns the named queue, creating it with depth if absent.
func CreateOrLookup(name string, depth int) (*Queue, error) {
	return global.CreateOrLookup(name, depth)
}

// Publish returns a Publisher bound to the named queue in the global
// Registry, creating it with Keys.StandardQueueDepth if it does not yet exist.
func Publish(name string) (*Publisher, error) { return global.Publish(name) }

// Subscribe returns a Subscriber bound to the named queue in the global
// Registry, creating it with Keys.StandardQueueDepth if it does not yet exist.
func Subscribe(name string, kind SubscriberType) (*Subscriber, error) {
	return global.Subscribe(name, kind)
}

// Create registers a new, empty queue named name.
func (r *Registry) Create(name string, depth int) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queues.Find(name); ok {
		return nil, fmt.Errorf("%w: %q", ErrQueueExists, name)
	}
	q, err := newQueue(name, depth)
	if err != nil {
		return nil, err
	}
	r.queues.Add(name, q, true)
	return q, nil
}

// Lookup returns the named queue, or ErrQueueNotFound.
func (r *Registry) Lookup(name string) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrQueueNotFound, name)
	}
	return q, nil
}

// CreateOrLookup returns the named queue, creating it with depth if it does
// not yet exist. Multiple producers/consumers that don't know startup order
// use this to rendezvous on a shared queue regardless of who gets there
// first.
func (r *Registry) CreateOrLookup(name string, depth int) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues.Find(name); ok {
		return q, nil
	}
	q, err := newQueue(name, depth)
	if err != nil {
		return nil, err
	}
	r.queues.Add(name, q, true)
	return q, nil
}

// Publish returns a Publisher for the named queue, creating it if absent.
func (r *Registry) Publish(name string) (*Publisher, error) {
	q, err := r.CreateOrLookup(name, 0)
	if err != nil {
		return nil, err
	}
	return &Publisher{q: q}, nil
}

// Subscribe returns a Subscriber for the named queue, creating it if
// absent.
func (r *Registry) Subscribe(name string, kind SubscriberType) (*Subscriber, error) {
	q, err := r.CreateOrLookup(name, 0)
	if err != nil {
		return nil, err
	}
	return &Subscriber{q: q, c: q.addCursor(kind)}, nil
}

// Stats returns a Stats snapshot for every queue currently registered.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, r.queues.Len())
	for _, q, ok := r.queues.First(); ok; _, q, ok = r.queues.Next() {
		out = append(out, q.Stats())
	}
	return out
}

// AllStats returns a Stats snapshot for every queue in the global Registry.
func AllStats() []Stats { return global.Stats() }

// QueueInfo is the operator-facing introspection view of one queue,
// spec.md §6.3's "list queues with {name, depth_used, state,
// subscriptions}".
type QueueInfo struct {
	Name          string
	DepthUsed     int
	State         string
	Subscriptions int
}

// stateFor summarizes a Stats snapshot into the single descriptive state
// an operator cares about at a glance.
func stateFor(s Stats) string {
	switch {
	case s.Subscribers == 0:
		return "no_subscribers"
	case s.Occupied >= s.Depth:
		return "full"
	case s.Occupied == 0:
		return "empty"
	default:
		return "active"
	}
}

// ListQueues returns operator-facing introspection info for every queue in
// r.
func (r *Registry) ListQueues() []QueueInfo {
	stats := r.Stats()
	out := make([]QueueInfo, 0, len(stats))
	for _, s := range stats {
		out = append(out, QueueInfo{
			Name:          s.Name,
			DepthUsed:     s.Occupied,
			State:         stateFor(s),
			Subscriptions: s.Subscribers,
		})
	}
	return out
}

// ListQueues returns operator-facing introspection info for every queue in
// the global Registry.
func ListQueues() []QueueInfo { return global.ListQueues() }
