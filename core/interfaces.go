package core

import (
	"context"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/internal/notify"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// Vessel is the host's view of a simulated vehicle. Implementations must be
// cheap to query; the cache calls these on every refresh.
type Vessel interface {
	ID() model.VesselID
	Name() string
	Kind() model.VesselKind
	// Loaded reports whether the vessel is fully simulated. Dormant vessels
	// only expose persisted part data.
	Loaded() bool
	IsRescue() bool
	IsDeadEVA() bool

	Position() model.Vec3
	Velocity() model.Vec3
	MainBody() *model.Body
	Altitude() float64
	Landed() bool

	Antennas() []model.Antenna
}

// EnvironmentSample holds the raw physical facts at a vessel position.
type EnvironmentSample struct {
	SunVisible bool
	SunDir     model.Vec3
	SunDist    float64
	SolarFlux  float64

	AlbedoFlux  float64
	BodyFlux    float64
	TotalFlux   float64
	Temperature float64

	AtmosphereFactor  float64
	GammaTransparency float64
	Radiation         float64

	InnerBelt     bool
	OuterBelt     bool
	Magnetosphere bool
	Interstellar  bool
	// StormBlackout is set inside a magnetosphere while a radiation storm is
	// in progress. It surfaces as Environment.Blackout only.
	StormBlackout bool

	Thermosphere bool
	Exosphere    bool
	Underwater   bool
	Breathable   bool
	Landed       bool
}

// EnvironmentSampler computes the physical environment of a vessel. It is a
// pure function of its inputs.
type EnvironmentSampler interface {
	Sample(ctx context.Context, v Vessel, pos model.Vec3, t time.Time) (EnvironmentSample, error)
}

// OrbitAnalyzer supplies the orbit averages used in analytic mode.
type OrbitAnalyzer interface {
	OrbitalPeriod(v Vessel) float64
	ShadowPeriod(v Vessel) float64
	SolarFlux(sunDist float64) float64
	SunDistance(pos model.Vec3) float64
	// AnalyticAtmosphereFactor is the mean atmospheric absorption over one
	// body revolution for a landed vessel.
	AnalyticAtmosphereFactor(body *model.Body, pos, sunDir model.Vec3) float64
}

// RelayNode is one endpoint of a control-path link.
type RelayNode struct {
	Name string
	// VesselID is zero for home stations.
	VesselID      model.VesselID
	Home          bool
	Position      model.Vec3
	TransmitPower float64
	RelayPower    float64
}

// RelayLink is a directed link of the control path.
type RelayLink struct {
	Start RelayNode
	End   RelayNode
}

// Distance returns the link length in metres.
func (l RelayLink) Distance() float64 {
	return l.Start.Position.DistanceTo(l.End.Position)
}

// NetworkConnection is the network's view of one vessel.
type NetworkConnection struct {
	Connected bool
	// Strength is the end-to-end signal strength in [0,1].
	Strength float64
	// ControlPath is ordered from the vessel towards home.
	ControlPath []RelayLink
}

// NetworkTopology resolves control paths. Connection reports ok=false when
// the vessel has no network membership at all.
type NetworkTopology interface {
	Connection(v Vessel) (conn NetworkConnection, ok bool)
	// ForceRefresh recomputes the connection of a dormant vessel before it
	// is queried.
	ForceRefresh(v Vessel)
	IsInPlasmaBlackout(v Vessel) bool
}

// PersistedModule is the saved state of one part module of a dormant
// vessel.
type PersistedModule interface {
	GetString(field string) (string, bool)
	GetFloat(field string) (float64, bool)
}

// PartFieldReader gives read access to persisted part modules.
type PartFieldReader interface {
	FindModule(vessel model.VesselID, partID, module string) (PersistedModule, bool)
}

// VesselResolver maps ids back to live vessels. Used to follow relay hops.
type VesselResolver interface {
	Vessel(id model.VesselID) (Vessel, bool)
}

// ProbeResult is the logistics state of a vessel gathered by the host.
type ProbeResult struct {
	Powered      bool
	CrewCount    int
	CrewCapacity int
	Malfunction  bool
	Critical     bool
	Habitat      model.HabitatInfo
	// Transmitting names the file queued for transmission, if any.
	Transmitting string
}

// VesselProbe gathers crew, power and habitat data for a vessel.
type VesselProbe interface {
	Probe(v Vessel) ProbeResult
}

// Notifier receives change notifications. Delivery is synchronous.
type Notifier interface {
	Notify(kind notify.EventKind, id model.VesselID, payload any)
}

// WarpClock exposes simulation time and the time-acceleration factor.
type WarpClock interface {
	Now() time.Time
	WarpRate() float64
}

// CacheMetrics records refresh activity. Implementations must tolerate
// concurrent use.
type CacheMetrics interface {
	ObserveRefresh(mode, result string, d time.Duration)
	RecordFastPath()
	SetCachedVessels(n int)
}
