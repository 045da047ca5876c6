package core

import (
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// LinkStatus is the coarse state of a vessel's connection to the network
// root.
type LinkStatus int

const (
	NoLink LinkStatus = iota
	DirectLink
	IndirectLink
	PlasmaBlackout
)

func (s LinkStatus) String() string {
	switch s {
	case DirectLink:
		return "direct"
	case IndirectLink:
		return "indirect"
	case PlasmaBlackout:
		return "plasma"
	default:
		return "no_link"
	}
}

// HopDescriptor is the display view of one link of the control path.
type HopDescriptor struct {
	Name         string
	Strength     float64
	StrengthText string
	Distance     float64
	MaxDistance  float64
	Tooltip      string
}

// ConnectionStatus is the communication state of a vessel. Rate is zero
// whenever Linked is false and Hops is non-empty exactly when Linked is true.
type ConnectionStatus struct {
	Linked     bool
	Status     LinkStatus
	Strength   float64
	Rate       float64 // bits/s
	EnergyCost float64
	TargetName string
	Hops       []HopDescriptor
}

func (c ConnectionStatus) clone() ConnectionStatus {
	if c.Hops != nil {
		hops := make([]HopDescriptor, len(c.Hops))
		copy(hops, c.Hops)
		c.Hops = hops
	}
	return c
}

// Environment holds the position-derived values of a snapshot.
type Environment struct {
	Sunlight  float64 // 1/0 when sampled, in-sun fraction in analytic mode
	SunDir    model.Vec3
	SunDist   float64
	SolarFlux float64

	AlbedoFlux  float64
	BodyFlux    float64
	TotalFlux   float64
	Temperature float64
	TempDiff    float64

	AtmosphereFactor  float64
	GammaTransparency float64
	Radiation         float64

	Magnetosphere bool
	InnerBelt     bool
	OuterBelt     bool
	Interstellar  bool
	Blackout      bool
	Thermosphere  bool
	Exosphere     bool
	Underwater    bool
	Breathable    bool
	Landed        bool
	ZeroG         bool
}

// RadiationField is the belt-membership triple watched for changes.
type RadiationField struct {
	InnerBelt     bool
	OuterBelt     bool
	Magnetosphere bool
}

// VesselSnapshot is the cached derived state of one vessel. When IsValid is
// false none of the environment or connection fields are meaningful and they
// are kept at their zero values.
type VesselSnapshot struct {
	ID model.VesselID

	IsVessel bool
	IsRescue bool
	IsValid  bool

	Powered      bool
	CrewCount    int
	CrewCapacity int

	Environment Environment
	Connection  ConnectionStatus
	CanTransmit bool
	// Transmitting is the identity of the file being transmitted, or empty.
	Transmitting string

	Malfunction bool
	Critical    bool
	Habitat     model.HabitatInfo

	Generation      uint64
	Stale           bool
	FirstEvaluation bool

	Analytic        bool
	AnalyticElapsed float64 // simulated seconds since the last analytic sample
	LastRefresh     time.Time

	analyticSunlight  float64
	analyticSolarFlux float64
}

// RadiationField returns the watched belt-membership triple.
func (s *VesselSnapshot) RadiationField() RadiationField {
	return RadiationField{
		InnerBelt:     s.Environment.InnerBelt,
		OuterBelt:     s.Environment.OuterBelt,
		Magnetosphere: s.Environment.Magnetosphere,
	}
}

func newSnapshot(id model.VesselID) *VesselSnapshot {
	return &VesselSnapshot{
		ID:              id,
		Stale:           true,
		FirstEvaluation: true,
	}
}

// clearDerived zeroes every field that depends on the vessel being valid,
// keeping identity and bookkeeping intact.
func (s *VesselSnapshot) clearDerived() {
	s.Powered = false
	s.CrewCount = 0
	s.CrewCapacity = 0
	s.Environment = Environment{}
	s.Connection = ConnectionStatus{}
	s.CanTransmit = false
	s.Transmitting = ""
	s.Malfunction = false
	s.Critical = false
	s.Habitat = model.HabitatInfo{}
	s.Analytic = false
	s.AnalyticElapsed = 0
	s.analyticSunlight = 0
	s.analyticSolarFlux = 0
}

func (s *VesselSnapshot) copy() VesselSnapshot {
	out := *s
	out.Connection = s.Connection.clone()
	return out
}
