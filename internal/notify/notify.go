// Package notify is the in-process change notification bus.
package notify

import (
	"sync"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// EventKind identifies the group of fields that changed.
type EventKind int

const (
	RadiationFieldChanged EventKind = iota + 1
	TransmitStateChanged
	ExperimentStateChanged
)

func (k EventKind) String() string {
	switch k {
	case RadiationFieldChanged:
		return "radiation_field_changed"
	case TransmitStateChanged:
		return "transmit_state_changed"
	case ExperimentStateChanged:
		return "experiment_state_changed"
	default:
		return "unknown"
	}
}

// RadiationField is the payload of RadiationFieldChanged.
type RadiationField struct {
	InnerBelt     bool
	OuterBelt     bool
	Magnetosphere bool
}

// TransmitState is the payload of TransmitStateChanged.
type TransmitState struct {
	Transmitting string
	CanTransmit  bool
}

// ExperimentState is the payload of ExperimentStateChanged.
type ExperimentState struct {
	ExperimentID string
	State        model.ExperimentState
	Running      bool
}

// Event is one delivered notification.
type Event struct {
	Kind     EventKind
	VesselID model.VesselID
	Payload  any
}

// Listener receives events. Listeners run on the notifying goroutine and
// must not refresh the vessel the event is about.
type Listener func(Event)

// Recorder counts delivered notifications.
type Recorder interface {
	RecordNotification(kind string)
}

type subscription struct {
	id int
	fn Listener
}

// Bus fans notifications out to listeners synchronously, in registration
// order. Panics in listeners propagate to the caller of Notify.
type Bus struct {
	mu       sync.Mutex
	subs     []subscription
	nextID   int
	recorder Recorder
}

// NewBus constructs an empty bus. recorder may be nil.
func NewBus(recorder Recorder) *Bus {
	return &Bus{recorder: recorder}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers an event to every listener registered at the time of the
// call.
func (b *Bus) Notify(kind EventKind, id model.VesselID, payload any) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	if b.recorder != nil {
		b.recorder.RecordNotification(kind.String())
	}

	ev := Event{Kind: kind, VesselID: id, Payload: payload}
	// Deliver outside the lock so listeners may subscribe or unsubscribe.
	for _, s := range subs {
		s.fn(ev)
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
