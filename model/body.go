package model

// Body is a celestial body as seen by the environment model. Positions are
// world-frame metres and are refreshed by the host every tick.
type Body struct {
	Name     string
	Index    int // 0 is the system star
	Radius   float64
	Mu       float64 // gravitational parameter, m^3/s^2
	Position Vec3

	Luminosity         float64 // W, stars only
	Albedo             float64
	SurfaceTemperature float64 // K, used for body IR flux

	HasAtmosphere   bool
	AtmosphereDepth float64 // m above the surface
	Breathable      bool
	HasOcean        bool

	// Radiation environment. Altitudes are measured from the surface.
	HasMagnetosphere   bool
	MagnetopauseRadius float64
	InnerBelt          Belt
	OuterBelt          Belt
	StormActive        bool

	RotationPeriod float64 // s
}

// Belt is a spherical radiation shell around a body.
type Belt struct {
	MinAltitude float64
	MaxAltitude float64
	Radiation   float64 // rad/h at the belt centre
}

// Contains reports whether altitude alt lies inside the belt.
func (b Belt) Contains(alt float64) bool {
	return b.MaxAltitude > b.MinAltitude && alt >= b.MinAltitude && alt <= b.MaxAltitude
}

// IsStar reports whether the body is the system star.
func (b *Body) IsStar() bool {
	return b != nil && b.Index == 0
}
