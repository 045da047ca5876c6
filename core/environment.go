package core

import (
	"context"
	"math"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

const (
	// SurvivalTemperature is the ideal habitat temperature in kelvin.
	SurvivalTemperature = 295.0
	// SurvivalRange is the tolerated deviation around SurvivalTemperature.
	SurvivalRange = 5.0

	epsilon = 1e-12
)

// TempDiff returns how far temperature lies outside the survival range.
func TempDiff(temperature float64) float64 {
	return math.Max(math.Abs(temperature-SurvivalTemperature)-SurvivalRange, 0)
}

// ZeroG reports whether a vessel is in free fall: not landed and either the
// body has no atmosphere or the vessel is above it.
func ZeroG(landed bool, body *model.Body, altitude float64) bool {
	return !landed && (!body.HasAtmosphere || altitude > body.AtmosphereDepth)
}

func deriveEnvironment(s EnvironmentSample, v Vessel, body *model.Body) Environment {
	sunlight := 0.0
	if s.SunVisible {
		sunlight = 1
	}
	return Environment{
		Sunlight:  sunlight,
		SunDir:    s.SunDir,
		SunDist:   s.SunDist,
		SolarFlux: s.SolarFlux,

		AlbedoFlux:  s.AlbedoFlux,
		BodyFlux:    s.BodyFlux,
		TotalFlux:   s.TotalFlux,
		Temperature: s.Temperature,
		TempDiff:    TempDiff(s.Temperature),

		AtmosphereFactor:  s.AtmosphereFactor,
		GammaTransparency: s.GammaTransparency,
		Radiation:         s.Radiation,

		Magnetosphere: s.Magnetosphere,
		InnerBelt:     s.InnerBelt,
		OuterBelt:     s.OuterBelt,
		Interstellar:  s.Interstellar,
		Blackout:      s.StormBlackout,
		Thermosphere:  s.Thermosphere,
		Exosphere:     s.Exosphere,
		Underwater:    s.Underwater,
		Breathable:    s.Breathable,
		Landed:        s.Landed,
		ZeroG:         ZeroG(s.Landed, body, v.Altitude()),
	}
}

// applyAnalytic replaces the sampled sunlight and solar flux with orbit
// averages while the warp rate is above the analytic threshold. Values are
// resampled at most once per AnalyticGate of simulated time and held in
// between.
func (c *VesselStateCache) applyAnalytic(ctx context.Context, v Vessel, body *model.Body, snap *VesselSnapshot, env *Environment, now time.Time) {
	if c.analyzer == nil || body.IsStar() || c.clock.WarpRate() <= c.thresholds.AnalyticWarpThreshold {
		if snap.Analytic {
			c.log.Debug(ctx, "leaving analytic mode", logging.Vessel(v.ID(), v.Name()))
		}
		snap.Analytic = false
		snap.AnalyticElapsed = 0
		return
	}

	switch {
	case !snap.Analytic:
		snap.Analytic = true
		snap.AnalyticElapsed = 0
		c.sampleAnalytic(v, body, snap, env)
		c.log.Debug(ctx, "entering analytic mode",
			logging.Vessel(v.ID(), v.Name()),
			logging.Float("sunlight", snap.analyticSunlight),
		)
	default:
		if !snap.LastRefresh.IsZero() {
			if dt := now.Sub(snap.LastRefresh).Seconds(); dt > 0 {
				snap.AnalyticElapsed += dt
			}
		}
		if snap.AnalyticElapsed >= c.thresholds.AnalyticGate {
			c.sampleAnalytic(v, body, snap, env)
			snap.AnalyticElapsed = 0
		}
	}
	env.Sunlight = snap.analyticSunlight
	env.SolarFlux = snap.analyticSolarFlux
}

func (c *VesselStateCache) sampleAnalytic(v Vessel, body *model.Body, snap *VesselSnapshot, env *Environment) {
	pos := v.Position()
	sunlight := AnalyticSunlight(c.analyzer.ShadowPeriod(v), c.analyzer.OrbitalPeriod(v))
	flux := c.analyzer.SolarFlux(c.analyzer.SunDistance(pos))
	if v.Landed() && body.HasAtmosphere && v.Altitude() < body.AtmosphereDepth {
		// The sampled sun direction is used here on purpose rather than the
		// vessel-to-body direction.
		flux *= sunlight * c.analyzer.AnalyticAtmosphereFactor(body, pos, env.SunDir)
	} else {
		flux *= sunlight
	}
	snap.analyticSunlight = sunlight
	snap.analyticSolarFlux = flux
}

// AnalyticSunlight is the fraction of an orbit spent in sunlight. Open or
// degenerate orbits are always lit.
func AnalyticSunlight(shadowPeriod, orbitalPeriod float64) float64 {
	if orbitalPeriod <= 0 || math.IsNaN(orbitalPeriod) || math.IsInf(orbitalPeriod, 1) || math.IsNaN(shadowPeriod) {
		return 1
	}
	return clamp01(1 - shadowPeriod/orbitalPeriod)
}
