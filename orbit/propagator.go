// Package orbit propagates vessel state vectors and derives the orbit
// averages used by analytic mode.
package orbit

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// Propagator returns a state vector relative to the main body's centre, in
// metres and metres per second.
type Propagator interface {
	StateAt(t time.Time) (pos, vel model.Vec3)
}

// Fixed is a static state, used for landed vessels and ground stations.
type Fixed struct {
	Offset model.Vec3
}

// StateAt for a fixed state never changes.
func (f Fixed) StateAt(time.Time) (model.Vec3, model.Vec3) {
	return f.Offset, model.Vec3{}
}

// SGP4 propagates a two-line element set. Only meaningful around Earth-like
// bodies, since the model carries Earth's gravity constants.
type SGP4 struct {
	sat satellite.Satellite
}

// NewSGP4 constructs a propagator from TLE lines.
func NewSGP4(line1, line2 string) *SGP4 {
	return &SGP4{sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}
}

// StateAt propagates the satellite to t. go-satellite works in kilometres; we
// return metres.
func (s *SGP4) StateAt(t time.Time) (model.Vec3, model.Vec3) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	pos, vel := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)

	const kmToM = 1000.0
	return model.Vec3{X: pos.X * kmToM, Y: pos.Y * kmToM, Z: pos.Z * kmToM},
		model.Vec3{X: vel.X * kmToM, Y: vel.Y * kmToM, Z: vel.Z * kmToM}
}

// GroundPosition returns the Earth-fixed position at t in metres, rotating the
// inertial state by Greenwich sidereal time.
func (s *SGP4) GroundPosition(t time.Time) model.Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	posECEF := satellite.ECIToECEF(posECI, satellite.ThetaG_JD(jd))

	const kmToM = 1000.0
	return model.Vec3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
}

// Circular is a circular orbit of the given radius around a body with
// gravitational parameter Mu.
type Circular struct {
	Radius      float64
	Mu          float64
	Inclination float64 // radians
	Phase       float64 // radians at Epoch
	Epoch       time.Time
}

// MeanMotion returns the angular rate in radians per second.
func (c Circular) MeanMotion() float64 {
	if c.Radius <= 0 || c.Mu <= 0 {
		return 0
	}
	return math.Sqrt(c.Mu / (c.Radius * c.Radius * c.Radius))
}

// StateAt places the vessel on its circle at t.
func (c Circular) StateAt(t time.Time) (model.Vec3, model.Vec3) {
	n := c.MeanMotion()
	theta := c.Phase + n*t.Sub(c.Epoch).Seconds()
	sinT, cosT := math.Sincos(theta)
	sinI, cosI := math.Sincos(c.Inclination)
	speed := n * c.Radius

	pos := model.Vec3{X: c.Radius * cosT, Y: c.Radius * sinT * cosI, Z: c.Radius * sinT * sinI}
	vel := model.Vec3{X: -speed * sinT, Y: speed * cosT * cosI, Z: speed * cosT * sinI}
	return pos, vel
}

// OrbitalPeriod returns the period of the orbit through (pos, vel), or +Inf
// for open orbits.
func OrbitalPeriod(pos, vel model.Vec3, mu float64) float64 {
	r := pos.Norm()
	if r == 0 || mu <= 0 {
		return math.Inf(1)
	}
	energy := vel.Dot(vel)/2 - mu/r
	if energy >= 0 {
		return math.Inf(1)
	}
	a := -mu / (2 * energy)
	return 2 * math.Pi * math.Sqrt(a*a*a/mu)
}

// ShadowPeriod returns the time spent in the body's shadow per orbit, using
// a cylindrical shadow and a circular orbit at the current radius. Polar and
// equatorial orbits are treated alike.
func ShadowPeriod(pos, vel model.Vec3, mu, bodyRadius float64) float64 {
	period := OrbitalPeriod(pos, vel, mu)
	if math.IsInf(period, 1) {
		return 0
	}
	r := pos.Norm()
	ratio := bodyRadius / r
	if ratio >= 1 {
		return period / 2
	}
	return period / math.Pi * math.Asin(ratio)
}
