package model

import (
	"fmt"

	"github.com/google/uuid"
)

// VesselID is the stable identifier of a vessel. It survives load/unload
// and save/reload and is never reused for another vessel.
type VesselID struct {
	uuid.UUID
}

// NilVesselID is the zero id; home stations and unregistered nodes carry it.
var NilVesselID = VesselID{}

// NewVesselID returns a fresh random id.
func NewVesselID() VesselID {
	return VesselID{UUID: uuid.New()}
}

// ParseVesselID parses the canonical textual form of an id.
func ParseVesselID(s string) (VesselID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilVesselID, fmt.Errorf("parse vessel id %q: %w", s, err)
	}
	return VesselID{UUID: u}, nil
}

// MustParseVesselID is ParseVesselID for fixtures and tests.
func MustParseVesselID(s string) VesselID {
	id, err := ParseVesselID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero reports whether id is the nil id.
func (id VesselID) IsZero() bool {
	return id.UUID == uuid.Nil
}

// VesselKind classifies what a vessel object actually is. Only ships count
// as valid vessels; debris, flags and the like are tracked but never
// evaluated.
type VesselKind int

const (
	KindShip VesselKind = iota
	KindEVA
	KindDebris
	KindFlag
	KindAsteroid
	KindUnknown
)

var vesselKindNames = map[VesselKind]string{
	KindShip:     "ship",
	KindEVA:      "eva",
	KindDebris:   "debris",
	KindFlag:     "flag",
	KindAsteroid: "asteroid",
	KindUnknown:  "unknown",
}

func (k VesselKind) String() string {
	if s, ok := vesselKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseVesselKind maps the scenario spelling of a kind back to the enum.
func ParseVesselKind(s string) (VesselKind, error) {
	for k, name := range vesselKindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown vessel kind %q", s)
}

// IsValidKind reports whether vessels of this kind are evaluated at all.
func (k VesselKind) IsValidKind() bool {
	return k == KindShip || k == KindEVA
}
