// Package envmodel is the default environment sampler used by the
// simulator. The physics are deliberately simple: every quantity is a closed
// form of the vessel position and the body catalogue.
package envmodel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/model"
	"github.com/got-is-bad-at-git/Kerbalism/orbit"
)

// StefanBoltzmann is the Stefan-Boltzmann constant in W/m^2/K^4.
const StefanBoltzmann = 5.670374419e-8

// BackgroundTemperature is the temperature of empty space in kelvin.
const BackgroundTemperature = 2.725

var (
	// ErrNoStar is returned when the catalogue has no body with index 0.
	ErrNoStar = errors.New("body catalogue has no star")
	// ErrUnknownBody is returned for a vessel orbiting a body outside the
	// catalogue.
	ErrUnknownBody = errors.New("unknown body")
)

// Params tunes the radiation model. Rates are in rad/h.
type Params struct {
	ExternRadiation   float64 // outside any magnetosphere
	StormRadiation    float64 // added during a storm outside magnetospheres
	ShieldedFraction  float64 // share of ExternRadiation left inside a magnetosphere
	ThermosphereScale float64 // thermosphere top as a multiple of atmosphere depth
	ExosphereScale    float64 // exosphere top as a multiple of atmosphere depth
}

// DefaultParams returns the stock radiation tuning.
func DefaultParams() Params {
	return Params{
		ExternRadiation:   0.04,
		StormRadiation:    5.0,
		ShieldedFraction:  0.1,
		ThermosphereScale: 5,
		ExosphereScale:    25,
	}
}

// Model samples the environment from a fixed catalogue of bodies.
type Model struct {
	star   *model.Body
	bodies []*model.Body
	byName map[string]*model.Body
	params Params
}

// New builds a model. Exactly one body must have index 0.
func New(bodies []*model.Body, params Params) (*Model, error) {
	m := &Model{bodies: bodies, byName: make(map[string]*model.Body, len(bodies)), params: params}
	for _, b := range bodies {
		if b == nil {
			continue
		}
		if _, dup := m.byName[b.Name]; dup {
			return nil, fmt.Errorf("duplicate body %q", b.Name)
		}
		m.byName[b.Name] = b
		if b.IsStar() {
			if m.star != nil {
				return nil, fmt.Errorf("more than one star: %q and %q", m.star.Name, b.Name)
			}
			m.star = b
		}
	}
	if m.star == nil {
		return nil, ErrNoStar
	}
	return m, nil
}

// Body looks up a body by name.
func (m *Model) Body(name string) (*model.Body, bool) {
	b, ok := m.byName[name]
	return b, ok
}

// Bodies returns the catalogue.
func (m *Model) Bodies() []*model.Body { return m.bodies }

// Star returns the system star.
func (m *Model) Star() *model.Body { return m.star }

// Sample implements core.EnvironmentSampler.
func (m *Model) Sample(_ context.Context, v core.Vessel, pos model.Vec3, _ time.Time) (core.EnvironmentSample, error) {
	body := v.MainBody()
	if body == nil {
		return core.EnvironmentSample{}, fmt.Errorf("vessel %q: %w", v.Name(), core.ErrNoMainBody)
	}
	if _, ok := m.byName[body.Name]; !ok {
		return core.EnvironmentSample{}, fmt.Errorf("%w %q", ErrUnknownBody, body.Name)
	}

	var out core.EnvironmentSample
	toSun := m.star.Position.Sub(pos)
	out.SunDist = toSun.Norm()
	out.SunDir = toSun.Normalized()
	out.SunVisible = m.SunVisible(pos)
	out.SolarFlux = m.SolarFlux(out.SunDist)
	out.Landed = v.Landed()

	alt := v.Altitude()
	out.AtmosphereFactor = AtmosphereFactor(body, pos, out.SunDir)
	out.GammaTransparency = GammaTransparency(body, alt)
	out.Underwater = body.HasOcean && alt < 0
	out.Breathable = body.Breathable && !out.Underwater && body.HasAtmosphere && alt < body.AtmosphereDepth*0.2

	sunlight := 0.0
	if out.SunVisible {
		sunlight = 1
	}
	if !body.IsStar() {
		out.AlbedoFlux = m.AlbedoFlux(body, pos)
		out.BodyFlux = BodyFlux(body, pos)
	}
	out.TotalFlux = out.SolarFlux*sunlight*out.AtmosphereFactor + out.AlbedoFlux + out.BodyFlux
	out.Temperature = m.Temperature(body, alt, out.Landed, out.TotalFlux)

	m.radiation(body, pos, alt, &out)

	if body.HasAtmosphere {
		depth := body.AtmosphereDepth
		out.Thermosphere = alt > depth && alt <= depth*m.params.ThermosphereScale
		out.Exosphere = alt > depth*m.params.ThermosphereScale && alt <= depth*m.params.ExosphereScale
	}
	return out, nil
}

func (m *Model) radiation(body *model.Body, pos model.Vec3, alt float64, out *core.EnvironmentSample) {
	out.Magnetosphere = !body.IsStar() && body.HasMagnetosphere && pos.DistanceTo(body.Position) < body.MagnetopauseRadius
	out.InnerBelt = !body.IsStar() && body.InnerBelt.Contains(alt)
	out.OuterBelt = !body.IsStar() && body.OuterBelt.Contains(alt)
	out.Interstellar = m.star.HasMagnetosphere && pos.DistanceTo(m.star.Position) > m.star.MagnetopauseRadius
	out.StormBlackout = out.Magnetosphere && body.StormActive

	rad := m.params.ExternRadiation
	if out.Magnetosphere {
		rad *= m.params.ShieldedFraction
	} else if body.StormActive {
		rad += m.params.StormRadiation
	}
	if out.InnerBelt {
		rad += body.InnerBelt.Radiation
	}
	if out.OuterBelt {
		rad += body.OuterBelt.Radiation
	}
	out.Radiation = rad * out.GammaTransparency
}

// SunVisible reports whether no body occludes the star from pos.
func (m *Model) SunVisible(pos model.Vec3) bool {
	return core.LineOfSight(pos, m.star.Position, m.bodies, m.star.Name)
}

// SolarFlux returns the star's flux in W/m^2 at distance d.
func (m *Model) SolarFlux(d float64) float64 {
	if d <= 0 {
		return 0
	}
	return m.star.Luminosity / (4 * math.Pi * d * d)
}

// SunDistance returns the distance from pos to the star centre.
func (m *Model) SunDistance(pos model.Vec3) float64 {
	return pos.DistanceTo(m.star.Position)
}

// AlbedoFlux is the sunlight reflected by body towards pos. The lit share
// falls off with the angle between the local vertical and the sun.
func (m *Model) AlbedoFlux(body *model.Body, pos model.Vec3) float64 {
	toSun := m.star.Position.Sub(body.Position)
	up := pos.Sub(body.Position)
	r := up.Norm()
	if r == 0 || toSun.Norm() == 0 {
		return 0
	}
	cosPhase := up.Normalized().Dot(toSun.Normalized())
	lit := 0.5 * (1 + cosPhase)
	scale := body.Radius / r
	return m.SolarFlux(toSun.Norm()) * body.Albedo * scale * scale * lit
}

// BodyFlux is the infrared emission of body received at pos.
func BodyFlux(body *model.Body, pos model.Vec3) float64 {
	r := pos.DistanceTo(body.Position)
	if r == 0 || body.SurfaceTemperature <= 0 {
		return 0
	}
	scale := body.Radius / r
	t2 := body.SurfaceTemperature * body.SurfaceTemperature
	return StefanBoltzmann * t2 * t2 * scale * scale
}

// Temperature returns the radiative equilibrium temperature of a small
// sphere receiving flux. Inside an atmosphere it is pulled towards the
// surface temperature.
func (m *Model) Temperature(body *model.Body, alt float64, landed bool, flux float64) float64 {
	space := math.Pow(math.Max(flux, 0)/(4*StefanBoltzmann), 0.25)
	space = math.Max(space, BackgroundTemperature)
	if !body.HasAtmosphere || body.AtmosphereDepth <= 0 || alt >= body.AtmosphereDepth {
		return space
	}
	weight := 1 - math.Max(alt, 0)/body.AtmosphereDepth
	if landed {
		weight = 1
	}
	surface := body.SurfaceTemperature
	if surface <= 0 {
		surface = space
	}
	return weight*surface + (1-weight)*space
}

// density is the normalised atmospheric density at alt, 1 at the surface
// and close to 0 at the top of the atmosphere.
func density(body *model.Body, alt float64) float64 {
	if !body.HasAtmosphere || body.AtmosphereDepth <= 0 || alt >= body.AtmosphereDepth {
		return 0
	}
	scaleHeight := body.AtmosphereDepth / 7
	return math.Exp(-math.Max(alt, 0) / scaleHeight)
}

// AtmosphereFactor is the fraction of sunlight that crosses the atmosphere
// to reach pos.
func AtmosphereFactor(body *model.Body, pos, sunDir model.Vec3) float64 {
	alt := pos.DistanceTo(body.Position) - body.Radius
	rho := density(body, alt)
	if rho == 0 {
		return 1
	}
	up := pos.Sub(body.Position).Normalized()
	cosZenith := math.Max(up.Dot(sunDir), 0.05)
	return math.Exp(-0.5 * rho / cosZenith)
}

// GammaTransparency is the fraction of ionizing radiation not blocked by the
// atmosphere at alt.
func GammaTransparency(body *model.Body, alt float64) float64 {
	return math.Exp(-3 * density(body, alt))
}

// OrbitalPeriod implements core.OrbitAnalyzer.
func (m *Model) OrbitalPeriod(v core.Vessel) float64 {
	body := v.MainBody()
	if body == nil {
		return math.Inf(1)
	}
	return orbit.OrbitalPeriod(v.Position().Sub(body.Position), v.Velocity(), body.Mu)
}

// ShadowPeriod implements core.OrbitAnalyzer.
func (m *Model) ShadowPeriod(v core.Vessel) float64 {
	body := v.MainBody()
	if body == nil {
		return 0
	}
	return orbit.ShadowPeriod(v.Position().Sub(body.Position), v.Velocity(), body.Mu, body.Radius)
}

// analyticSteps is the number of rotation samples used to average the
// atmosphere factor over one day.
const analyticSteps = 48

// AnalyticAtmosphereFactor averages the atmosphere factor over the daylight
// part of one body revolution, rotating pos about the body's Z axis.
func (m *Model) AnalyticAtmosphereFactor(body *model.Body, pos, sunDir model.Vec3) float64 {
	rel := pos.Sub(body.Position)
	var sum float64
	var lit int
	for i := 0; i < analyticSteps; i++ {
		angle := 2 * math.Pi * float64(i) / analyticSteps
		sinA, cosA := math.Sincos(angle)
		rotated := model.Vec3{
			X: rel.X*cosA - rel.Y*sinA,
			Y: rel.X*sinA + rel.Y*cosA,
			Z: rel.Z,
		}
		if rotated.Normalized().Dot(sunDir) <= 0 {
			continue
		}
		sum += AtmosphereFactor(body, body.Position.Add(rotated), sunDir)
		lit++
	}
	if lit == 0 {
		return 0
	}
	return sum / float64(lit)
}
