// Package science tracks the running state of experiments across vessels.
package science

import (
	"sort"
	"sync"

	"github.com/got-is-bad-at-git/Kerbalism/internal/notify"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// Notifier receives experiment notifications.
type Notifier interface {
	Notify(kind notify.EventKind, id model.VesselID, payload any)
}

// Tracker records the last known state of every experiment and notifies when
// an experiment starts or stops running.
type Tracker struct {
	mu       sync.Mutex
	states   map[model.VesselID]map[string]model.ExperimentState
	notifier Notifier
}

// NewTracker constructs an empty tracker. notifier may be nil.
func NewTracker(notifier Notifier) *Tracker {
	return &Tracker{
		states:   make(map[model.VesselID]map[string]model.ExperimentState),
		notifier: notifier,
	}
}

// Update stores the new state of an experiment. A notification is sent when
// the running flag flips or when the experiment had no known state yet.
func (t *Tracker) Update(vessel model.VesselID, experimentID string, state model.ExperimentState) {
	t.mu.Lock()
	byExperiment, ok := t.states[vessel]
	if !ok {
		byExperiment = make(map[string]model.ExperimentState)
		t.states[vessel] = byExperiment
	}
	prev := byExperiment[experimentID]
	byExperiment[experimentID] = state
	t.mu.Unlock()

	running := state == model.ExperimentRunning
	wasRunning := prev == model.ExperimentRunning
	if running == wasRunning && prev != model.ExperimentUnknown {
		return
	}
	if t.notifier != nil {
		t.notifier.Notify(notify.ExperimentStateChanged, vessel, notify.ExperimentState{
			ExperimentID: experimentID,
			State:        state,
			Running:      running,
		})
	}
}

// Info returns the last known state of an experiment, Unknown when none.
func (t *Tracker) Info(vessel model.VesselID, experimentID string) model.ExperimentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[vessel][experimentID]
}

// Experiments lists the tracked experiment ids of a vessel in order.
func (t *Tracker) Experiments(vessel model.VesselID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.states[vessel]))
	for id := range t.states[vessel] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Forget drops every experiment of a vessel that no longer exists.
func (t *Tracker) Forget(vessel model.VesselID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, vessel)
}
