// Package sim hosts vessels from a scenario and drives the state cache on
// every tick of the time controller.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/got-is-bad-at-git/Kerbalism/commnet"
	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/envmodel"
	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/internal/notify"
	"github.com/got-is-bad-at-git/Kerbalism/internal/scenario"
	"github.com/got-is-bad-at-git/Kerbalism/internal/science"
	"github.com/got-is-bad-at-git/Kerbalism/kb"
	"github.com/got-is-bad-at-git/Kerbalism/model"
	"github.com/got-is-bad-at-git/Kerbalism/orbit"
	"github.com/got-is-bad-at-git/Kerbalism/timectrl"
)

const tracerName = "github.com/got-is-bad-at-git/Kerbalism/internal/sim"

// DefaultPlasmaSpeed is the body-relative speed in m/s above which a vessel
// inside an atmosphere loses its link to entry plasma.
const DefaultPlasmaSpeed = 2000.0

// Tick failure reasons reported to TickMetrics.
const (
	FailureCorrupt = "corrupt"
	FailureCycle   = "cycle"
	FailureError   = "error"
)

// TickMetrics records tick activity.
type TickMetrics interface {
	ObserveTick(d time.Duration, vessels int)
	RecordTickFailure(reason string)
}

// PartStore persists part-module fields of dormant vessels.
type PartStore interface {
	core.PartFieldReader
	SaveModule(ctx context.Context, vessel model.VesselID, partID, module string, fields map[string]string) error
	DeleteVessel(ctx context.Context, vessel model.VesselID) (int64, error)
}

// TickReport summarises one tick.
type TickReport struct {
	Time      time.Time
	Refreshed int
	Failed    int
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option { return func(s *Simulator) { s.log = l } }

// WithTickMetrics attaches a tick metrics recorder.
func WithTickMetrics(m TickMetrics) Option { return func(s *Simulator) { s.metrics = m } }

// WithCacheMetrics is forwarded to the vessel state cache.
func WithCacheMetrics(m core.CacheMetrics) Option { return func(s *Simulator) { s.cacheMetrics = m } }

// WithPartStore stores persisted part modules from the scenario and serves
// them to the cache for dormant vessels.
func WithPartStore(p PartStore) Option { return func(s *Simulator) { s.parts = p } }

// WithBus sets the notification bus. A private bus is created otherwise.
func WithBus(b *notify.Bus) Option { return func(s *Simulator) { s.bus = b } }

// WithThresholds overrides the cache thresholds.
func WithThresholds(t core.Thresholds) Option { return func(s *Simulator) { s.thresholds = t } }

// WithEnvironmentParams overrides the radiation model tuning.
func WithEnvironmentParams(p envmodel.Params) Option { return func(s *Simulator) { s.envParams = p } }

// WithPlasmaSpeed sets the plasma blackout speed. Zero disables blackouts.
func WithPlasmaSpeed(v float64) Option { return func(s *Simulator) { s.plasmaSpeed = v } }

// Simulator owns every component of a running scenario. All mutation goes
// through its lock; the state cache itself is single-threaded.
type Simulator struct {
	mu sync.Mutex

	clock    *timectrl.TimeController
	bodies   *scenario.BodySystem
	env      *envmodel.Model
	network  *commnet.Network
	registry *kb.Registry
	cache    *core.VesselStateCache
	tracker  *orbit.Tracker
	science  *science.Tracker
	bus      *notify.Bus
	vessels  map[model.VesselID]*Vessel
	epoch    time.Time

	log          logging.Logger
	metrics      TickMetrics
	cacheMetrics core.CacheMetrics
	parts        PartStore
	thresholds   core.Thresholds
	envParams    envmodel.Params
	plasmaSpeed  float64
	tracer       trace.Tracer

	runOnce  sync.Once
	running  bool
	lastTick TickReport
}

// New builds the world described by sc and registers its vessels.
func New(ctx context.Context, sc *scenario.Scenario, clock *timectrl.TimeController, opts ...Option) (*Simulator, error) {
	if sc == nil || clock == nil {
		return nil, errors.New("sim: scenario and clock are required")
	}
	s := &Simulator{
		clock:       clock,
		vessels:     make(map[model.VesselID]*Vessel),
		epoch:       sc.Epoch,
		log:         logging.Noop(),
		thresholds:  core.DefaultThresholds(),
		envParams:   envmodel.DefaultParams(),
		plasmaSpeed: DefaultPlasmaSpeed,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = notify.NewBus(nil)
	}

	bodies, err := sc.BuildBodies()
	if err != nil {
		return nil, err
	}
	s.bodies = bodies
	s.env, err = envmodel.New(bodies.Bodies, s.envParams)
	if err != nil {
		return nil, fmt.Errorf("environment model: %w", err)
	}

	s.network = commnet.NewNetwork(bodies.Bodies, s.log)
	for _, h := range sc.Homes {
		body, _ := bodies.Body(h.Body)
		if err := s.network.AddHome(&commnet.Home{
			Name:         h.Name,
			Body:         body,
			Power:        h.Power,
			Offset:       h.Offset(body),
			MinElevation: h.MinElevationDeg,
		}); err != nil {
			return nil, err
		}
	}

	s.registry = kb.NewRegistry()
	cacheOpts := []core.CacheOption{
		core.WithResolver(s.registry),
		core.WithProbe(s),
		core.WithNotifier(s.bus),
		core.WithClock(clock),
		core.WithAnalyzer(s.env),
		core.WithThresholds(s.thresholds),
		core.WithLogger(s.log),
	}
	if s.parts != nil {
		cacheOpts = append(cacheOpts, core.WithPartFields(s.parts))
	}
	if s.cacheMetrics != nil {
		cacheOpts = append(cacheOpts, core.WithMetrics(s.cacheMetrics))
	}
	s.cache = core.NewVesselStateCache(s.env, s.network, cacheOpts...)
	s.registry.BindCache(s.cache)

	s.tracker = orbit.NewTracker(stateSink{s})
	s.science = science.NewTracker(s.bus)

	if sc.WarpRate > 0 {
		clock.SetWarpRate(sc.WarpRate)
	}
	clock.SetTime(sc.Epoch)

	for _, spec := range sc.Vessels {
		if _, err := s.addVessel(ctx, spec); err != nil {
			return nil, err
		}
	}
	s.log.Info(ctx, "scenario loaded",
		logging.Int("bodies", len(bodies.Bodies)),
		logging.Int("homes", len(sc.Homes)),
		logging.Int("vessels", len(s.vessels)),
	)
	return s, nil
}

// AddVessel registers a new vessel described by spec.
func (s *Simulator) AddVessel(ctx context.Context, spec scenario.VesselSpec) (*Vessel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addVessel(ctx, spec)
}

func (s *Simulator) addVessel(ctx context.Context, spec scenario.VesselSpec) (*Vessel, error) {
	id, err := spec.VesselID()
	if err != nil {
		return nil, err
	}
	kind, err := spec.VesselKind()
	if err != nil {
		return nil, err
	}
	body, ok := s.bodies.Body(spec.Body)
	if !ok {
		return nil, fmt.Errorf("vessel %q: %w: %s", spec.Name, envmodel.ErrUnknownBody, spec.Body)
	}

	v := &Vessel{
		id:       id,
		name:     spec.Name,
		kind:     kind,
		loaded:   spec.IsLoaded(),
		rescue:   spec.Rescue,
		deadEVA:  spec.DeadEVA,
		landed:   spec.Landed,
		body:     body,
		antennas: spec.ModelAntennas(),
		probe: core.ProbeResult{
			Powered:      spec.IsPowered(),
			CrewCount:    spec.Crew,
			CrewCapacity: spec.CrewCapacity,
			Malfunction:  spec.Malfunction || spec.Critical,
			Critical:     spec.Critical,
			Transmitting: spec.Transmitting,
		},
	}
	prop := spec.Orbit.Propagator(body, s.epoch)
	rel, vel := prop.StateAt(s.clock.Now())
	v.setState(body.Position.Add(rel), vel)

	if err := s.registry.Add(v); err != nil {
		return nil, err
	}
	if err := s.network.Register(v); err != nil {
		_ = s.registry.Remove(id)
		return nil, err
	}
	if err := s.tracker.Add(id, prop); err != nil {
		s.network.Unregister(id)
		_ = s.registry.Remove(id)
		return nil, err
	}
	s.vessels[id] = v

	for _, p := range spec.Persisted {
		if s.parts == nil {
			s.log.Warn(ctx, "no part store configured, ignoring persisted module",
				logging.Vessel(id, v.name), logging.String("part", p.PartID), logging.String("module", p.Module))
			continue
		}
		if err := s.parts.SaveModule(ctx, id, p.PartID, p.Module, p.Fields); err != nil {
			return nil, err
		}
	}
	for _, e := range spec.Experiments {
		s.science.Update(id, e.ID, e.ExperimentState())
	}

	s.log.Debug(ctx, "vessel added", logging.Vessel(id, v.name), logging.String("body", body.Name))
	return v, nil
}

// RemoveVessel drops a vessel and everything tracked about it.
func (s *Simulator) RemoveVessel(ctx context.Context, id model.VesselID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vessels[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrVesselNotFound, id)
	}
	if err := s.registry.Remove(id); err != nil {
		return err
	}
	s.network.Unregister(id)
	_ = s.tracker.Remove(id)
	s.science.Forget(id)
	delete(s.vessels, id)
	if s.parts != nil {
		if _, err := s.parts.DeleteVessel(ctx, id); err != nil {
			s.log.Warn(ctx, "failed to delete persisted modules", logging.Vessel(id, v.name), logging.Err(err))
		}
	}
	return nil
}

// SetLoaded switches a vessel between loaded and dormant.
func (s *Simulator) SetLoaded(id model.VesselID, loaded bool) error {
	return s.modify(id, func(v *Vessel) { v.setLoaded(loaded) })
}

// SetAntennas replaces the antenna set of a vessel.
func (s *Simulator) SetAntennas(id model.VesselID, antennas []model.Antenna) error {
	return s.modify(id, func(v *Vessel) { v.setAntennas(antennas) })
}

// SetProbe replaces the logistics data reported for a vessel.
func (s *Simulator) SetProbe(id model.VesselID, p core.ProbeResult) error {
	return s.modify(id, func(v *Vessel) { v.setProbe(p) })
}

func (s *Simulator) modify(id model.VesselID, fn func(*Vessel)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vessels[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrVesselNotFound, id)
	}
	fn(v)
	return s.registry.MarkModified(id)
}

// SetExperiment records the state of a science experiment.
func (s *Simulator) SetExperiment(id model.VesselID, experimentID string, state model.ExperimentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vessels[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrVesselNotFound, id)
	}
	s.science.Update(id, experimentID, state)
	return nil
}

// Probe implements core.VesselProbe from the host-side vessel data.
func (s *Simulator) Probe(v core.Vessel) core.ProbeResult {
	if hv, ok := v.(*Vessel); ok {
		return hv.probeResult()
	}
	return core.ProbeResult{}
}

// stateSink receives propagated states. It is only invoked from Tick, which
// already holds the simulator lock.
type stateSink struct{ s *Simulator }

func (k stateSink) UpdateState(id model.VesselID, rel, vel model.Vec3) error {
	v, ok := k.s.vessels[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrVesselNotFound, id)
	}
	pos := rel
	if v.body != nil {
		pos = v.body.Position.Add(rel)
	}
	v.setState(pos, vel)
	k.s.network.SetPosition(id, pos)
	k.s.network.SetPlasma(id, v.inPlasma(k.s.plasmaSpeed))
	return nil
}

// Tick moves the world to t and refreshes every vessel. Per-vessel failures
// are logged and counted; the vessel keeps its previous snapshot.
func (s *Simulator) Tick(ctx context.Context, t time.Time) TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "Simulator.Tick",
		trace.WithAttributes(attribute.String("sim.time", t.UTC().Format(time.RFC3339))))
	defer span.End()
	start := time.Now()

	s.bodies.Advance(t)
	if err := s.tracker.UpdatePositions(t); err != nil {
		s.log.Warn(ctx, "position update failed", logging.Err(err))
	}
	s.network.Advance()
	s.cache.InvalidateAll()

	report := TickReport{Time: t}
	for _, v := range s.registry.List() {
		if _, err := s.cache.Refresh(ctx, v); err != nil {
			report.Failed++
			s.recordFailure(ctx, v, err)
			continue
		}
		report.Refreshed++
	}

	span.SetAttributes(
		attribute.Int("sim.refreshed", report.Refreshed),
		attribute.Int("sim.failed", report.Failed),
	)
	if s.metrics != nil {
		s.metrics.ObserveTick(time.Since(start), len(s.vessels))
	}
	s.lastTick = report
	return report
}

func (s *Simulator) recordFailure(ctx context.Context, v core.Vessel, err error) {
	reason := FailureError
	var corrupt *core.CorruptStateError
	switch {
	case errors.As(err, &corrupt):
		reason = FailureCorrupt
		s.log.Error(ctx, "corrupt vessel position, skipping for this tick",
			logging.Vessel(v.ID(), v.Name()),
			logging.String("body", corrupt.Body),
			logging.Float("distance", corrupt.Distance),
		)
	case errors.Is(err, core.ErrTopologyCycle):
		reason = FailureCycle
		s.log.Warn(ctx, "relay topology cycle", logging.Vessel(v.ID(), v.Name()), logging.Err(err))
	default:
		s.log.Error(ctx, "vessel refresh failed", logging.Vessel(v.ID(), v.Name()), logging.Err(err))
	}
	if s.metrics != nil {
		s.metrics.RecordTickFailure(reason)
	}
}

// Run ticks the simulator from the time controller until ctx is cancelled
// or duration of simulation time has elapsed. Calling Run more than once
// has no further effect on listener registration.
func (s *Simulator) Run(ctx context.Context, duration time.Duration) <-chan struct{} {
	s.runOnce.Do(func() {
		s.clock.AddListener(func(t time.Time) { s.Tick(ctx, t) })
	})
	s.setRunning(true)
	done := s.clock.Start(ctx, duration)
	out := make(chan struct{})
	go func() {
		<-done
		s.setRunning(false)
		close(out)
	}()
	return out
}

func (s *Simulator) setRunning(r bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = r
}

// Running reports whether Run is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastTick returns the report of the most recent tick.
func (s *Simulator) LastTick() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Snapshots returns the cached snapshot of every vessel, ordered by name.
func (s *Simulator) Snapshots() []core.VesselSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.VesselSnapshot, 0, len(s.vessels))
	for _, v := range s.registry.List() {
		if snap, ok := s.cache.Snapshot(v.ID()); ok {
			out = append(out, snap)
		}
	}
	return out
}

// NamedSnapshot pairs a cached snapshot with the vessel's display name.
type NamedSnapshot struct {
	Name string
	core.VesselSnapshot
}

// NamedSnapshots is Snapshots with vessel names attached.
func (s *Simulator) NamedSnapshots() []NamedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]NamedSnapshot, 0, len(s.vessels))
	for _, v := range s.registry.List() {
		if snap, ok := s.cache.Snapshot(v.ID()); ok {
			out = append(out, NamedSnapshot{Name: v.Name(), VesselSnapshot: snap})
		}
	}
	return out
}

// Vessels returns the hosted vessels ordered by name.
func (s *Simulator) Vessels() []*Vessel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Vessel, 0, len(s.vessels))
	for _, v := range s.vessels {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].id.String() < out[j].id.String()
	})
	return out
}

// Experiments lists the experiment states of a vessel.
func (s *Simulator) Experiments(id model.VesselID) map[string]model.ExperimentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.ExperimentState)
	for _, exp := range s.science.Experiments(id) {
		out[exp] = s.science.Info(id, exp)
	}
	return out
}

// Bus returns the notification bus. Listeners run inside Tick and must not
// call back into the Simulator.
func (s *Simulator) Bus() *notify.Bus { return s.bus }

// Clock returns the time controller.
func (s *Simulator) Clock() *timectrl.TimeController { return s.clock }
