// Package scenario loads the YAML description of a star system, its ground
// stations and the vessels flying in it.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/got-is-bad-at-git/Kerbalism/model"
	"github.com/got-is-bad-at-git/Kerbalism/orbit"
)

// Scenario is the root document.
type Scenario struct {
	Epoch    time.Time    `yaml:"epoch"`
	Bodies   []BodySpec   `yaml:"bodies" validate:"required,min=1,dive"`
	Homes    []HomeSpec   `yaml:"homes" validate:"dive"`
	Vessels  []VesselSpec `yaml:"vessels" validate:"dive"`
	Storms   []string     `yaml:"storms"`
	WarpRate float64      `yaml:"warp_rate" validate:"gte=0"`
}

// BodySpec describes a celestial body. A body with a parent moves on a
// circular orbit around it; otherwise it sits at Position.
type BodySpec struct {
	Name     string   `yaml:"name" validate:"required"`
	Index    int      `yaml:"index" validate:"gte=0"`
	Radius   float64  `yaml:"radius" validate:"gt=0"`
	Mu       float64  `yaml:"mu" validate:"gte=0"`
	Position Vec3Spec `yaml:"position"`

	Parent      string  `yaml:"parent"`
	OrbitRadius float64 `yaml:"orbit_radius" validate:"required_with=Parent,gte=0"`
	PhaseDeg    float64 `yaml:"phase_deg"`

	Luminosity         float64 `yaml:"luminosity" validate:"gte=0"`
	Albedo             float64 `yaml:"albedo" validate:"gte=0,lte=1"`
	SurfaceTemperature float64 `yaml:"surface_temperature" validate:"gte=0"`
	RotationPeriod     float64 `yaml:"rotation_period" validate:"gte=0"`

	Atmosphere *AtmosphereSpec `yaml:"atmosphere"`
	Ocean      bool            `yaml:"ocean"`

	Magnetosphere *MagnetosphereSpec `yaml:"magnetosphere"`
}

// AtmosphereSpec describes a body atmosphere.
type AtmosphereSpec struct {
	Depth      float64 `yaml:"depth" validate:"gt=0"`
	Breathable bool    `yaml:"breathable"`
}

// MagnetosphereSpec describes the radiation environment around a body.
type MagnetosphereSpec struct {
	Radius    float64  `yaml:"radius" validate:"gt=0"`
	InnerBelt BeltSpec `yaml:"inner_belt"`
	OuterBelt BeltSpec `yaml:"outer_belt"`
}

// BeltSpec is a radiation belt shell, altitudes from the surface.
type BeltSpec struct {
	Min       float64 `yaml:"min" validate:"gte=0"`
	Max       float64 `yaml:"max" validate:"gte=0"`
	Radiation float64 `yaml:"radiation" validate:"gte=0"`
}

// HomeSpec is a ground station.
type HomeSpec struct {
	Name            string  `yaml:"name" validate:"required"`
	Body            string  `yaml:"body" validate:"required"`
	Power           float64 `yaml:"power" validate:"gt=0"`
	LatitudeDeg     float64 `yaml:"latitude_deg" validate:"gte=-90,lte=90"`
	LongitudeDeg    float64 `yaml:"longitude_deg" validate:"gte=-180,lte=360"`
	Altitude        float64 `yaml:"altitude" validate:"gte=0"`
	MinElevationDeg float64 `yaml:"min_elevation_deg" validate:"gte=-90,lte=90"`
}

// VesselSpec describes one vessel.
type VesselSpec struct {
	ID      string    `yaml:"id" validate:"omitempty,uuid"`
	Name    string    `yaml:"name" validate:"required"`
	Kind    string    `yaml:"kind" validate:"omitempty,oneof=ship eva debris flag asteroid unknown"`
	Body    string    `yaml:"body" validate:"required"`
	Loaded  *bool     `yaml:"loaded"`
	Rescue  bool      `yaml:"rescue"`
	DeadEVA bool      `yaml:"dead_eva"`
	Landed  bool      `yaml:"landed"`
	Orbit   OrbitSpec `yaml:"orbit"`

	Powered      *bool  `yaml:"powered"`
	Crew         int    `yaml:"crew" validate:"gte=0"`
	CrewCapacity int    `yaml:"crew_capacity" validate:"gtefield=Crew"`
	Malfunction  bool   `yaml:"malfunction"`
	Critical     bool   `yaml:"critical"`
	Transmitting string `yaml:"transmitting"`

	Antennas    []AntennaSpec    `yaml:"antennas" validate:"dive"`
	Persisted   []PersistedSpec  `yaml:"persisted" validate:"dive"`
	Experiments []ExperimentSpec `yaml:"experiments" validate:"dive"`
}

// OrbitSpec selects a propagator.
type OrbitSpec struct {
	Type           string   `yaml:"type" validate:"omitempty,oneof=circular tle fixed"`
	Radius         float64  `yaml:"radius" validate:"gte=0"`
	InclinationDeg float64  `yaml:"inclination_deg"`
	PhaseDeg       float64  `yaml:"phase_deg"`
	TLE1           string   `yaml:"tle1"`
	TLE2           string   `yaml:"tle2"`
	Offset         Vec3Spec `yaml:"offset"`
}

// AntennaSpec describes one antenna part.
type AntennaSpec struct {
	PartID        string  `yaml:"part_id" validate:"required"`
	Type          string  `yaml:"type" validate:"required,oneof=internal direct relay"`
	DataRate      float64 `yaml:"data_rate" validate:"gte=0"`
	Cost          float64 `yaml:"cost" validate:"gte=0"`
	TransmitPower float64 `yaml:"transmit_power" validate:"gte=0"`
	RelayPower    float64 `yaml:"relay_power" validate:"gte=0"`
	Deployer      string  `yaml:"deployer" validate:"omitempty,oneof=none deployable animated"`
	DeployState   string  `yaml:"deploy_state" validate:"omitempty,oneof=RETRACTED EXTENDING EXTENDED RETRACTING BROKEN"`
	AnimSpeed     float64 `yaml:"anim_speed"`
}

// PersistedSpec is the saved state of a part module on a dormant vessel.
type PersistedSpec struct {
	PartID string            `yaml:"part_id" validate:"required"`
	Module string            `yaml:"module" validate:"required"`
	Fields map[string]string `yaml:"fields" validate:"required"`
}

// ExperimentSpec is the initial state of a science experiment.
type ExperimentSpec struct {
	ID    string `yaml:"id" validate:"required"`
	State string `yaml:"state" validate:"omitempty,oneof=unknown stopped waiting running issue"`
}

// Vec3Spec is a YAML vector.
type Vec3Spec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Vec3 converts to the model vector.
func (v Vec3Spec) Vec3() model.Vec3 { return model.Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFile reads and validates a scenario file.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a scenario. Unknown keys are rejected.
func Load(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if sc.Epoch.IsZero() {
		sc.Epoch = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	return &sc, nil
}

// Validate checks field constraints and cross references.
func (sc *Scenario) Validate() error {
	if err := validate.Struct(sc); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidScenario, formatValidationError(err))
	}

	bodies := make(map[string]bool, len(sc.Bodies))
	stars := 0
	for _, b := range sc.Bodies {
		if bodies[b.Name] {
			return fmt.Errorf("%w: duplicate body %q", ErrInvalidScenario, b.Name)
		}
		bodies[b.Name] = true
		if b.Index == 0 {
			stars++
		}
	}
	if stars != 1 {
		return fmt.Errorf("%w: need exactly one star (index 0), got %d", ErrInvalidScenario, stars)
	}
	for _, b := range sc.Bodies {
		if b.Parent != "" && !bodies[b.Parent] {
			return fmt.Errorf("%w: body %q orbits unknown parent %q", ErrInvalidScenario, b.Name, b.Parent)
		}
	}
	if _, err := sc.orderedBodies(); err != nil {
		return err
	}
	for _, name := range sc.Storms {
		if !bodies[name] {
			return fmt.Errorf("%w: storm on unknown body %q", ErrInvalidScenario, name)
		}
	}

	homes := make(map[string]bool, len(sc.Homes))
	for _, h := range sc.Homes {
		if homes[h.Name] {
			return fmt.Errorf("%w: duplicate home %q", ErrInvalidScenario, h.Name)
		}
		homes[h.Name] = true
		if !bodies[h.Body] {
			return fmt.Errorf("%w: home %q on unknown body %q", ErrInvalidScenario, h.Name, h.Body)
		}
	}

	ids := make(map[string]bool, len(sc.Vessels))
	for _, v := range sc.Vessels {
		if !bodies[v.Body] {
			return fmt.Errorf("%w: vessel %q around unknown body %q", ErrInvalidScenario, v.Name, v.Body)
		}
		if v.ID != "" {
			key := strings.ToLower(v.ID)
			if ids[key] {
				return fmt.Errorf("%w: duplicate vessel id %s", ErrInvalidScenario, v.ID)
			}
			ids[key] = true
		}
		if v.Orbit.Type == "tle" && (v.Orbit.TLE1 == "" || v.Orbit.TLE2 == "") {
			return fmt.Errorf("%w: vessel %q: tle orbit needs tle1 and tle2", ErrInvalidScenario, v.Name)
		}
		if v.Orbit.Type == "circular" && v.Orbit.Radius <= 0 {
			return fmt.Errorf("%w: vessel %q: circular orbit needs a radius", ErrInvalidScenario, v.Name)
		}
	}
	return nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
	}
	return strings.Join(msgs, "; ")
}

// orderedBodies returns bodies with every parent before its children.
func (sc *Scenario) orderedBodies() ([]BodySpec, error) {
	byName := make(map[string]BodySpec, len(sc.Bodies))
	for _, b := range sc.Bodies {
		byName[b.Name] = b
	}
	out := make([]BodySpec, 0, len(sc.Bodies))
	state := make(map[string]int, len(sc.Bodies)) // 1 visiting, 2 done
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case 1:
			return fmt.Errorf("%w: body %q orbits itself through its parents", ErrInvalidScenario, name)
		case 2:
			return nil
		}
		state[name] = 1
		b := byName[name]
		if b.Parent != "" {
			if err := visit(b.Parent); err != nil {
				return err
			}
		}
		state[name] = 2
		out = append(out, b)
		return nil
	}
	for _, b := range sc.Bodies {
		if err := visit(b.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// BodySystem is the built catalogue of bodies with their orbits.
type BodySystem struct {
	// Bodies are ordered parents first.
	Bodies []*model.Body
	orbits []bodyOrbit
}

type bodyOrbit struct {
	body   *model.Body
	parent *model.Body
	orbit  orbit.Circular
}

// BuildBodies converts the body specs to model bodies and places them at the
// scenario epoch.
func (sc *Scenario) BuildBodies() (*BodySystem, error) {
	ordered, err := sc.orderedBodies()
	if err != nil {
		return nil, err
	}
	storms := make(map[string]bool, len(sc.Storms))
	for _, name := range sc.Storms {
		storms[name] = true
	}
	sys := &BodySystem{}
	byName := make(map[string]*model.Body, len(ordered))
	for _, spec := range ordered {
		b := spec.Body()
		b.StormActive = storms[b.Name]
		byName[b.Name] = b
		sys.Bodies = append(sys.Bodies, b)
		if spec.Parent == "" {
			continue
		}
		parent := byName[spec.Parent]
		sys.orbits = append(sys.orbits, bodyOrbit{
			body:   b,
			parent: parent,
			orbit: orbit.Circular{
				Radius: spec.OrbitRadius,
				Mu:     parent.Mu,
				Phase:  deg2rad(spec.PhaseDeg),
				Epoch:  sc.Epoch,
			},
		})
	}
	sys.Advance(sc.Epoch)
	return sys, nil
}

// Advance moves every orbiting body to its position at t.
func (s *BodySystem) Advance(t time.Time) {
	for _, o := range s.orbits {
		rel, _ := o.orbit.StateAt(t)
		o.body.Position = o.parent.Position.Add(rel)
	}
}

// Body finds a body by name.
func (s *BodySystem) Body(name string) (*model.Body, bool) {
	for _, b := range s.Bodies {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// Body converts the spec to a model body.
func (b BodySpec) Body() *model.Body {
	out := &model.Body{
		Name:               b.Name,
		Index:              b.Index,
		Radius:             b.Radius,
		Mu:                 b.Mu,
		Position:           b.Position.Vec3(),
		Luminosity:         b.Luminosity,
		Albedo:             b.Albedo,
		SurfaceTemperature: b.SurfaceTemperature,
		HasOcean:           b.Ocean,
		RotationPeriod:     b.RotationPeriod,
	}
	if b.Atmosphere != nil {
		out.HasAtmosphere = true
		out.AtmosphereDepth = b.Atmosphere.Depth
		out.Breathable = b.Atmosphere.Breathable
	}
	if b.Magnetosphere != nil {
		out.HasMagnetosphere = true
		out.MagnetopauseRadius = b.Magnetosphere.Radius
		out.InnerBelt = b.Magnetosphere.InnerBelt.Belt()
		out.OuterBelt = b.Magnetosphere.OuterBelt.Belt()
	}
	return out
}

// Belt converts the spec to a model belt.
func (b BeltSpec) Belt() model.Belt {
	return model.Belt{MinAltitude: b.Min, MaxAltitude: b.Max, Radiation: b.Radiation}
}

// Offset returns the station position relative to the body centre.
func (h HomeSpec) Offset(body *model.Body) model.Vec3 {
	r := body.Radius + h.Altitude
	sinLat, cosLat := math.Sincos(deg2rad(h.LatitudeDeg))
	sinLon, cosLon := math.Sincos(deg2rad(h.LongitudeDeg))
	return model.Vec3{X: r * cosLat * cosLon, Y: r * cosLat * sinLon, Z: r * sinLat}
}

// VesselID returns the configured id or a fresh one.
func (v VesselSpec) VesselID() (model.VesselID, error) {
	if v.ID == "" {
		return model.NewVesselID(), nil
	}
	return model.ParseVesselID(v.ID)
}

// VesselKind returns the parsed kind, defaulting to ship.
func (v VesselSpec) VesselKind() (model.VesselKind, error) {
	if v.Kind == "" {
		return model.KindShip, nil
	}
	return model.ParseVesselKind(v.Kind)
}

// IsLoaded defaults to true.
func (v VesselSpec) IsLoaded() bool { return v.Loaded == nil || *v.Loaded }

// IsPowered defaults to true.
func (v VesselSpec) IsPowered() bool { return v.Powered == nil || *v.Powered }

// ModelAntennas converts every antenna spec.
func (v VesselSpec) ModelAntennas() []model.Antenna {
	out := make([]model.Antenna, 0, len(v.Antennas))
	for _, a := range v.Antennas {
		out = append(out, a.Antenna())
	}
	return out
}

// Antenna converts the spec to a model antenna. The spec has already been
// validated, so unknown enums cannot occur.
func (a AntennaSpec) Antenna() model.Antenna {
	out := model.Antenna{
		PartID:           a.PartID,
		DataRate:         a.DataRate,
		DataResourceCost: a.Cost,
		TransmitPower:    a.TransmitPower,
		RelayPower:       a.RelayPower,
		DeployState:      model.DeployState(a.DeployState),
		AnimSpeed:        a.AnimSpeed,
	}
	switch a.Type {
	case "direct":
		out.Type = model.AntennaDirect
	case "relay":
		out.Type = model.AntennaRelay
	default:
		out.Type = model.AntennaInternal
	}
	switch a.Deployer {
	case "deployable":
		out.Deployer = model.DeployerDeployable
	case "animated":
		out.Deployer = model.DeployerAnimated
	default:
		out.Deployer = model.DeployerNone
	}
	return out
}

// ExperimentState parses the experiment state.
func (e ExperimentSpec) ExperimentState() model.ExperimentState {
	switch e.State {
	case "stopped":
		return model.ExperimentStopped
	case "waiting":
		return model.ExperimentWaiting
	case "running":
		return model.ExperimentRunning
	case "issue":
		return model.ExperimentIssue
	default:
		return model.ExperimentUnknown
	}
}

// Propagator builds the propagator for a vessel around body. The default is
// a fixed position at the configured offset, or on the surface when landed.
func (o OrbitSpec) Propagator(body *model.Body, epoch time.Time) orbit.Propagator {
	switch o.Type {
	case "circular":
		return orbit.Circular{
			Radius:      o.Radius,
			Mu:          body.Mu,
			Inclination: deg2rad(o.InclinationDeg),
			Phase:       deg2rad(o.PhaseDeg),
			Epoch:       epoch,
		}
	case "tle":
		return orbit.NewSGP4(o.TLE1, o.TLE2)
	default:
		return orbit.Fixed{Offset: o.Offset.Vec3()}
	}
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
