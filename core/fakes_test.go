package core

import (
	"context"
	"time"

	"github.com/got-is-bad-at-git/Kerbalism/internal/notify"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

var testKerbin = &model.Body{
	Name:            "Kerbin",
	Index:           1,
	Radius:          600_000,
	Position:        model.Vec3{X: 13_599_840_256},
	HasAtmosphere:   true,
	AtmosphereDepth: 70_000,
}

var testSun = &model.Body{Name: "Sun", Index: 0, Radius: 261_600_000}

type fakeVessel struct {
	id       model.VesselID
	name     string
	kind     model.VesselKind
	loaded   bool
	rescue   bool
	deadEVA  bool
	pos      model.Vec3
	vel      model.Vec3
	body     *model.Body
	altitude float64
	landed   bool
	antennas []model.Antenna
}

func newFakeVessel(name string) *fakeVessel {
	return &fakeVessel{
		id:       model.NewVesselID(),
		name:     name,
		kind:     model.KindShip,
		loaded:   true,
		body:     testKerbin,
		pos:      testKerbin.Position.Add(model.Vec3{X: 700_000}),
		altitude: 100_000,
	}
}

func (v *fakeVessel) ID() model.VesselID        { return v.id }
func (v *fakeVessel) Name() string              { return v.name }
func (v *fakeVessel) Kind() model.VesselKind    { return v.kind }
func (v *fakeVessel) Loaded() bool              { return v.loaded }
func (v *fakeVessel) IsRescue() bool            { return v.rescue }
func (v *fakeVessel) IsDeadEVA() bool           { return v.deadEVA }
func (v *fakeVessel) Position() model.Vec3      { return v.pos }
func (v *fakeVessel) Velocity() model.Vec3      { return v.vel }
func (v *fakeVessel) MainBody() *model.Body     { return v.body }
func (v *fakeVessel) Altitude() float64         { return v.altitude }
func (v *fakeVessel) Landed() bool              { return v.landed }
func (v *fakeVessel) Antennas() []model.Antenna { return v.antennas }

func directAntenna(rate float64) model.Antenna {
	return model.Antenna{
		PartID:           "antenna",
		Type:             model.AntennaDirect,
		DataRate:         rate,
		DataResourceCost: 0.5,
		TransmitPower:    5e5,
	}
}

type fakeSampler struct {
	calls  int
	sample EnvironmentSample
	err    error
	failOn map[model.VesselID]error
}

func (s *fakeSampler) Sample(_ context.Context, v Vessel, _ model.Vec3, _ time.Time) (EnvironmentSample, error) {
	s.calls++
	if err, ok := s.failOn[v.ID()]; ok {
		return EnvironmentSample{}, err
	}
	return s.sample, s.err
}

type fakeNetwork struct {
	conns        map[model.VesselID]NetworkConnection
	plasma       map[model.VesselID]bool
	forceRefresh int
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		conns:  make(map[model.VesselID]NetworkConnection),
		plasma: make(map[model.VesselID]bool),
	}
}

func (n *fakeNetwork) Connection(v Vessel) (NetworkConnection, bool) {
	c, ok := n.conns[v.ID()]
	return c, ok
}

func (n *fakeNetwork) ForceRefresh(Vessel) { n.forceRefresh++ }

func (n *fakeNetwork) IsInPlasmaBlackout(v Vessel) bool { return n.plasma[v.ID()] }

// linkHome connects v straight to a home station.
func (n *fakeNetwork) linkHome(v *fakeVessel, strength float64) {
	n.conns[v.id] = NetworkConnection{
		Connected: true,
		Strength:  strength,
		ControlPath: []RelayLink{{
			Start: RelayNode{Name: v.name, VesselID: v.id, Position: v.pos, TransmitPower: 5e5},
			End:   RelayNode{Name: "Kerbin DSN", Home: true, Position: testKerbin.Position, RelayPower: 2e11},
		}},
	}
}

// linkVia connects v to home through relay.
func (n *fakeNetwork) linkVia(v, relay *fakeVessel, strength float64) {
	n.conns[v.id] = NetworkConnection{
		Connected: true,
		Strength:  strength,
		ControlPath: []RelayLink{
			{
				Start: RelayNode{Name: v.name, VesselID: v.id, Position: v.pos, TransmitPower: 5e5},
				End:   RelayNode{Name: relay.name, VesselID: relay.id, Position: relay.pos, TransmitPower: 5e5, RelayPower: 1e10},
			},
			{
				Start: RelayNode{Name: relay.name, VesselID: relay.id, Position: relay.pos, TransmitPower: 5e5, RelayPower: 1e10},
				End:   RelayNode{Name: "Kerbin DSN", Home: true, Position: testKerbin.Position, RelayPower: 2e11},
			},
		},
	}
}

type resolverMap map[model.VesselID]Vessel

func (r resolverMap) Vessel(id model.VesselID) (Vessel, bool) {
	v, ok := r[id]
	return v, ok
}

func resolverOf(vs ...*fakeVessel) resolverMap {
	r := make(resolverMap)
	for _, v := range vs {
		r[v.id] = v
	}
	return r
}

type recordedEvent struct {
	kind    notify.EventKind
	id      model.VesselID
	payload any
}

type recordingNotifier struct {
	events []recordedEvent
}

func (n *recordingNotifier) Notify(kind notify.EventKind, id model.VesselID, payload any) {
	n.events = append(n.events, recordedEvent{kind: kind, id: id, payload: payload})
}

func (n *recordingNotifier) countFor(kind notify.EventKind, id model.VesselID) int {
	c := 0
	for _, e := range n.events {
		if e.kind == kind && e.id == id {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) count(kind notify.EventKind) int {
	c := 0
	for _, e := range n.events {
		if e.kind == kind {
			c++
		}
	}
	return c
}

type fakeClock struct {
	now  time.Time
	warp float64
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), warp: 1}
}

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) WarpRate() float64        { return c.warp }
func (c *fakeClock) advance(d time.Duration)  { c.now = c.now.Add(d) }
func (c *fakeClock) advanceSeconds(s float64) { c.advance(time.Duration(s * float64(time.Second))) }

type fakeAnalyzer struct {
	orbital, shadow float64
	flux            float64
	atmo            float64
	calls           int
	sunDir          model.Vec3
}

func (a *fakeAnalyzer) OrbitalPeriod(Vessel) float64 { return a.orbital }
func (a *fakeAnalyzer) ShadowPeriod(Vessel) float64 {
	a.calls++
	return a.shadow
}
func (a *fakeAnalyzer) SolarFlux(float64) float64      { return a.flux }
func (a *fakeAnalyzer) SunDistance(model.Vec3) float64 { return 1 }
func (a *fakeAnalyzer) AnalyticAtmosphereFactor(_ *model.Body, _ model.Vec3, sunDir model.Vec3) float64 {
	a.sunDir = sunDir
	return a.atmo
}

type fakeModule struct {
	strings map[string]string
	floats  map[string]float64
}

func (m fakeModule) GetString(field string) (string, bool) {
	s, ok := m.strings[field]
	return s, ok
}

func (m fakeModule) GetFloat(field string) (float64, bool) {
	f, ok := m.floats[field]
	return f, ok
}

type fakeParts map[string]fakeModule // key: partID/module

func (p fakeParts) FindModule(_ model.VesselID, partID, module string) (PersistedModule, bool) {
	m, ok := p[partID+"/"+module]
	if !ok {
		return nil, false
	}
	return m, true
}

type fakeProbe struct {
	result ProbeResult
}

func (p *fakeProbe) Probe(Vessel) ProbeResult { return p.result }
