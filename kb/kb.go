package kb

import (
	"fmt"
	"sort"
	"sync"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventVesselAdded EventType = iota
	EventVesselRemoved
	EventVesselModified
)

func (t EventType) String() string {
	switch t {
	case EventVesselAdded:
		return "added"
	case EventVesselRemoved:
		return "removed"
	case EventVesselModified:
		return "modified"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the set of vessels or one of their
// inputs changes.
type Event struct {
	Type     EventType
	VesselID model.VesselID
	Vessel   core.Vessel
}

type subscriber struct {
	id int
	fn func(Event)
}

// Registry is an in-memory, thread-safe set of the vessels that currently
// exist in the simulation.
type Registry struct {
	mu sync.RWMutex

	vessels map[model.VesselID]core.Vessel

	subs   []subscriber
	nextID int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		vessels: make(map[model.VesselID]core.Vessel),
	}
}

// Add registers a vessel. It returns an error if the ID already exists.
func (r *Registry) Add(v core.Vessel) error {
	r.mu.Lock()
	id := v.ID()
	if id.IsZero() {
		r.mu.Unlock()
		return fmt.Errorf("vessel %q has a nil id", v.Name())
	}
	if _, exists := r.vessels[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("vessel with ID %s already exists", id)
	}
	r.vessels[id] = v
	subs := r.snapshotSubs()
	r.mu.Unlock()

	publish(subs, Event{Type: EventVesselAdded, VesselID: id, Vessel: v})
	return nil
}

// Remove drops a vessel that was destroyed, merged or retired.
func (r *Registry) Remove(id model.VesselID) error {
	r.mu.Lock()
	v, ok := r.vessels[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrVesselNotFound, id)
	}
	delete(r.vessels, id)
	subs := r.snapshotSubs()
	r.mu.Unlock()

	publish(subs, Event{Type: EventVesselRemoved, VesselID: id, Vessel: v})
	return nil
}

// MarkModified signals that the inputs of a vessel changed outside the
// regular tick, e.g. after docking or losing a part.
func (r *Registry) MarkModified(id model.VesselID) error {
	r.mu.RLock()
	v, ok := r.vessels[id]
	subs := r.snapshotSubs()
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrVesselNotFound, id)
	}

	publish(subs, Event{Type: EventVesselModified, VesselID: id, Vessel: v})
	return nil
}

// Get returns the vessel with the given ID.
func (r *Registry) Get(id model.VesselID) (core.Vessel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vessels[id]
	return v, ok
}

// Vessel implements core.VesselResolver.
func (r *Registry) Vessel(id model.VesselID) (core.Vessel, bool) {
	return r.Get(id)
}

// List returns the registered vessels ordered by name, then id.
func (r *Registry) List() []core.Vessel {
	r.mu.RLock()
	res := make([]core.Vessel, 0, len(r.vessels))
	for _, v := range r.vessels {
		res = append(res, v)
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Name() != res[j].Name() {
			return res[i].Name() < res[j].Name()
		}
		return res[i].ID().String() < res[j].ID().String()
	})
	return res
}

// Len returns the number of registered vessels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vessels)
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s.id == id {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// CacheHooks is the part of the vessel state cache driven by registry
// events.
type CacheHooks interface {
	Evict(id model.VesselID)
	Invalidate(id model.VesselID)
}

// BindCache evicts snapshots of removed vessels and invalidates those of
// modified ones.
func (r *Registry) BindCache(c CacheHooks) (unsubscribe func()) {
	return r.Subscribe(func(ev Event) {
		switch ev.Type {
		case EventVesselRemoved:
			c.Evict(ev.VesselID)
		case EventVesselModified:
			c.Invalidate(ev.VesselID)
		}
	})
}

func (r *Registry) snapshotSubs() []subscriber {
	return append([]subscriber(nil), r.subs...)
}

// publish notifies subscribers outside the lock to avoid deadlocks.
func publish(subs []subscriber, ev Event) {
	for _, s := range subs {
		s.fn(ev)
	}
}
