package orbit

import (
	"fmt"
	"sync"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// PositionUpdater receives propagated states.
type PositionUpdater interface {
	UpdateState(id model.VesselID, pos, vel model.Vec3) error
}

// Tracker propagates a set of vessels and pushes their states to an updater
// on every tick.
type Tracker struct {
	mu          sync.Mutex
	propagators map[model.VesselID]Propagator
	updater     PositionUpdater
}

// NewTracker constructs an empty tracker.
func NewTracker(updater PositionUpdater) *Tracker {
	return &Tracker{
		propagators: make(map[model.VesselID]Propagator),
		updater:     updater,
	}
}

// Add starts tracking a vessel.
func (t *Tracker) Add(id model.VesselID, p Propagator) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.propagators[id]; exists {
		return fmt.Errorf("vessel %s already tracked", id)
	}
	t.propagators[id] = p
	return nil
}

// Remove stops tracking a vessel.
func (t *Tracker) Remove(id model.VesselID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.propagators[id]; !ok {
		return fmt.Errorf("vessel %s not tracked", id)
	}
	delete(t.propagators, id)
	return nil
}

// UpdatePositions propagates every tracked vessel to simTime. It keeps going
// after a failed update and returns the first error.
func (t *Tracker) UpdatePositions(simTime time.Time) error {
	t.mu.Lock()
	props := make(map[model.VesselID]Propagator, len(t.propagators))
	for id, p := range t.propagators {
		props[id] = p
	}
	t.mu.Unlock()

	var firstErr error
	for id, p := range props {
		pos, vel := p.StateAt(simTime)
		if t.updater == nil {
			continue
		}
		if err := t.updater.UpdateState(id, pos, vel); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("update vessel %s: %w", id, err)
		}
	}
	return firstErr
}
