package core

import (
	"errors"
	"fmt"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

var (
	// ErrCorruptPosition marks a vessel whose position coincides with its
	// main body. It is never recoverable for that tick.
	ErrCorruptPosition = errors.New("vessel position coincides with its main body")
	// ErrTopologyCycle is returned when relay resolution reaches a vessel that
	// is already being refreshed in the same call chain.
	ErrTopologyCycle = errors.New("relay topology cycle")
	// ErrVesselNotFound indicates an id with no registered vessel.
	ErrVesselNotFound = errors.New("vessel not found")
	// ErrNoMainBody indicates a valid vessel without a main body.
	ErrNoMainBody = errors.New("vessel has no main body")
)

// CorruptStateError carries the details of a corrupted-position failure.
type CorruptStateError struct {
	VesselID   model.VesselID
	VesselName string
	Body       string
	Distance   float64
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("vessel %q (%s) is %.3g m from the centre of %s: %v",
		e.VesselName, e.VesselID, e.Distance, e.Body, ErrCorruptPosition)
}

func (e *CorruptStateError) Unwrap() error { return ErrCorruptPosition }

// CycleError reports the vessel that was re-entered and the chain of
// vessels being refreshed when it happened.
type CycleError struct {
	VesselID model.VesselID
	Chain    []model.VesselID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: vessel %s re-entered (chain depth %d)", ErrTopologyCycle, e.VesselID, len(e.Chain))
}

func (e *CycleError) Unwrap() error { return ErrTopologyCycle }
