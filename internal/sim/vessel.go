package sim

import (
	"sync"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

// Vessel is the host-side vessel object. Positions are world-frame; the
// velocity is relative to the main body, which is what the orbit analyzer
// expects.
type Vessel struct {
	mu sync.RWMutex

	id      model.VesselID
	name    string
	kind    model.VesselKind
	loaded  bool
	rescue  bool
	deadEVA bool
	landed  bool
	body    *model.Body

	pos model.Vec3
	vel model.Vec3

	antennas []model.Antenna
	probe    core.ProbeResult
}

var _ core.Vessel = (*Vessel)(nil)

func (v *Vessel) ID() model.VesselID     { return v.id }
func (v *Vessel) Name() string           { return v.name }
func (v *Vessel) Kind() model.VesselKind { return v.kind }
func (v *Vessel) IsRescue() bool         { return v.rescue }
func (v *Vessel) IsDeadEVA() bool        { return v.deadEVA }
func (v *Vessel) MainBody() *model.Body  { return v.body }

func (v *Vessel) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}

func (v *Vessel) Landed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.landed
}

func (v *Vessel) Position() model.Vec3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.pos
}

func (v *Vessel) Velocity() model.Vec3 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.vel
}

// Altitude is measured from the main body's surface.
func (v *Vessel) Altitude() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.body == nil {
		return 0
	}
	return v.pos.DistanceTo(v.body.Position) - v.body.Radius
}

// Antennas returns a copy of the antenna list.
func (v *Vessel) Antennas() []model.Antenna {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]model.Antenna(nil), v.antennas...)
}

func (v *Vessel) setState(pos, vel model.Vec3) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = pos
	v.vel = vel
}

func (v *Vessel) setLoaded(loaded bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loaded = loaded
}

func (v *Vessel) setAntennas(antennas []model.Antenna) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.antennas = append([]model.Antenna(nil), antennas...)
}

func (v *Vessel) probeResult() core.ProbeResult {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.probe
}

func (v *Vessel) setProbe(p core.ProbeResult) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.probe = p
}

// inPlasma reports whether the vessel is flying fast enough through the
// atmosphere of its main body to be enveloped in entry plasma.
func (v *Vessel) inPlasma(speedThreshold float64) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b := v.body
	if b == nil || !b.HasAtmosphere || v.landed || speedThreshold <= 0 {
		return false
	}
	alt := v.pos.DistanceTo(b.Position) - b.Radius
	return alt < b.AtmosphereDepth && v.vel.Norm() > speedThreshold
}
