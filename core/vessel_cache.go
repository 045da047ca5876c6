package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/internal/notify"
	"github.com/got-is-bad-at-git/Kerbalism/model"
)

const tracerName = "github.com/got-is-bad-at-git/Kerbalism/core"

// Thresholds are the tunable constants of the cache.
type Thresholds struct {
	// AnalyticWarpThreshold is the warp rate above which analytic mode is
	// used.
	AnalyticWarpThreshold float64
	// AnalyticGate is the simulated time, in seconds, that must accumulate
	// before analytic values are resampled.
	AnalyticGate float64
	// PositionEpsilon is the distance, in metres, under which a vessel is
	// considered to sit on its main body's centre.
	PositionEpsilon float64
	// MinimumTransmitRate is the rate above which a vessel can transmit.
	MinimumTransmitRate float64
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AnalyticWarpThreshold: 1000,
		AnalyticGate:          5000,
		PositionEpsilon:       1.0,
		MinimumTransmitRate:   MinimumTransmitRate,
	}
}

// CacheOption configures a VesselStateCache.
type CacheOption func(*VesselStateCache)

func WithResolver(r VesselResolver) CacheOption    { return func(c *VesselStateCache) { c.resolver = r } }
func WithPartFields(p PartFieldReader) CacheOption { return func(c *VesselStateCache) { c.parts = p } }
func WithProbe(p VesselProbe) CacheOption          { return func(c *VesselStateCache) { c.probe = p } }
func WithNotifier(n Notifier) CacheOption          { return func(c *VesselStateCache) { c.notifier = n } }
func WithClock(clk WarpClock) CacheOption          { return func(c *VesselStateCache) { c.clock = clk } }
func WithAnalyzer(a OrbitAnalyzer) CacheOption     { return func(c *VesselStateCache) { c.analyzer = a } }
func WithThresholds(t Thresholds) CacheOption      { return func(c *VesselStateCache) { c.thresholds = t } }
func WithLogger(l logging.Logger) CacheOption      { return func(c *VesselStateCache) { c.log = l } }
func WithMetrics(m CacheMetrics) CacheOption       { return func(c *VesselStateCache) { c.metrics = m } }

// VesselStateCache owns one snapshot per vessel and recomputes it on demand
// when it has been invalidated.
//
// The cache is not safe for concurrent use. All refreshes of a tick are
// expected to run on the host's update goroutine.
type VesselStateCache struct {
	sampler    EnvironmentSampler
	network    NetworkTopology
	budget     *LinkBudget
	resolver   VesselResolver
	parts      PartFieldReader
	probe      VesselProbe
	notifier   Notifier
	clock      WarpClock
	analyzer   OrbitAnalyzer
	thresholds Thresholds
	log        logging.Logger
	metrics    CacheMetrics
	tracer     trace.Tracer

	snapshots  map[model.VesselID]*VesselSnapshot
	inProgress map[model.VesselID]struct{}
	chain      []model.VesselID
}

// NewVesselStateCache constructs an empty cache.
func NewVesselStateCache(sampler EnvironmentSampler, network NetworkTopology, opts ...CacheOption) *VesselStateCache {
	c := &VesselStateCache{
		sampler:    sampler,
		network:    network,
		thresholds: DefaultThresholds(),
		snapshots:  make(map[model.VesselID]*VesselSnapshot),
		inProgress: make(map[model.VesselID]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.Noop()
	}
	if c.clock == nil {
		c.clock = wallClock{}
	}
	c.tracer = otel.Tracer(tracerName)
	c.budget = NewLinkBudget(network, c.parts, c)
	return c
}

// GetOrCreate returns the snapshot for id, creating a stale one if needed.
// The returned pointer is owned by the cache.
func (c *VesselStateCache) GetOrCreate(id model.VesselID) *VesselSnapshot {
	if snap, ok := c.snapshots[id]; ok {
		return snap
	}
	snap := newSnapshot(id)
	c.snapshots[id] = snap
	if c.metrics != nil {
		c.metrics.SetCachedVessels(len(c.snapshots))
	}
	return snap
}

// Snapshot returns a copy of the cached snapshot without recomputing it.
func (c *VesselStateCache) Snapshot(id model.VesselID) (VesselSnapshot, bool) {
	snap, ok := c.snapshots[id]
	if !ok {
		return VesselSnapshot{}, false
	}
	return snap.copy(), true
}

// Invalidate marks the snapshot of id stale. Unknown ids are ignored.
func (c *VesselStateCache) Invalidate(id model.VesselID) {
	if snap, ok := c.snapshots[id]; ok {
		snap.Stale = true
	}
}

// InvalidateAll marks every snapshot stale; called once per tick.
func (c *VesselStateCache) InvalidateAll() {
	for _, snap := range c.snapshots {
		snap.Stale = true
	}
}

// Evict drops the snapshot of a vessel that no longer exists.
func (c *VesselStateCache) Evict(id model.VesselID) {
	if _, ok := c.snapshots[id]; !ok {
		return
	}
	delete(c.snapshots, id)
	if c.metrics != nil {
		c.metrics.SetCachedVessels(len(c.snapshots))
	}
}

// Len returns the number of cached snapshots.
func (c *VesselStateCache) Len() int { return len(c.snapshots) }

// IDs returns the cached vessel ids in a stable order.
func (c *VesselStateCache) IDs() []model.VesselID {
	ids := make([]model.VesselID, 0, len(c.snapshots))
	for id := range c.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Refresh brings the snapshot of v up to date and returns a copy of it. A
// snapshot that is not stale is returned as is.
func (c *VesselStateCache) Refresh(ctx context.Context, v Vessel) (VesselSnapshot, error) {
	id := v.ID()
	snap := c.GetOrCreate(id)
	if _, busy := c.inProgress[id]; busy {
		chain := append([]model.VesselID(nil), c.chain...)
		c.log.Error(ctx, "vessel re-entered during refresh",
			logging.Vessel(id, v.Name()),
			logging.Int("chain_depth", len(chain)),
		)
		return VesselSnapshot{}, &CycleError{VesselID: id, Chain: chain}
	}
	if !snap.Stale {
		if c.metrics != nil {
			c.metrics.RecordFastPath()
		}
		return snap.copy(), nil
	}

	c.inProgress[id] = struct{}{}
	c.chain = append(c.chain, id)
	defer func() {
		delete(c.inProgress, id)
		c.chain = c.chain[:len(c.chain)-1]
	}()

	ctx, span := c.tracer.Start(ctx, "VesselStateCache.Refresh",
		trace.WithAttributes(
			attribute.String("vessel.id", id.String()),
			attribute.String("vessel.name", v.Name()),
		),
	)
	defer span.End()

	start := time.Now()
	err := c.recompute(ctx, v, snap)
	if c.metrics != nil {
		c.metrics.ObserveRefresh(refreshMode(snap), refreshResult(err), time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return VesselSnapshot{}, err
	}
	span.SetAttributes(
		attribute.Bool("vessel.linked", snap.Connection.Linked),
		attribute.Bool("vessel.analytic", snap.Analytic),
	)
	return snap.copy(), nil
}

// RelayRate implements RelayRateSource by refreshing the relay vessel.
func (c *VesselStateCache) RelayRate(ctx context.Context, id model.VesselID) (float64, bool, error) {
	if c.resolver == nil || id.IsZero() {
		return 0, false, nil
	}
	relay, ok := c.resolver.Vessel(id)
	if !ok {
		return 0, false, nil
	}
	snap, err := c.Refresh(ctx, relay)
	if err != nil {
		return 0, false, err
	}
	return snap.Connection.Rate, true, nil
}

func (c *VesselStateCache) recompute(ctx context.Context, v Vessel, snap *VesselSnapshot) error {
	id := v.ID()
	snap.IsVessel = v.Kind().IsValidKind()
	snap.IsRescue = snap.IsVessel && v.IsRescue()
	snap.IsValid = snap.IsVessel && !snap.IsRescue && !v.IsDeadEVA()
	if !snap.IsValid {
		snap.clearDerived()
		snap.Stale = false
		snap.Generation++
		return nil
	}

	body := v.MainBody()
	if body == nil {
		return fmt.Errorf("vessel %q: %w", v.Name(), ErrNoMainBody)
	}

	pos := v.Position()
	if d := pos.DistanceTo(body.Position); d < c.thresholds.PositionEpsilon {
		err := &CorruptStateError{VesselID: id, VesselName: v.Name(), Body: body.Name, Distance: d}
		c.log.Error(ctx, "vessel position coincides with main body",
			logging.Vessel(id, v.Name()),
			logging.String("body", body.Name),
			logging.Float("distance_m", d),
		)
		return err
	}

	probe := ProbeResult{Powered: true}
	if c.probe != nil {
		probe = c.probe.Probe(v)
	}

	now := c.clock.Now()
	sample, err := c.sampler.Sample(ctx, v, pos, now)
	if err != nil {
		return err
	}

	// Work on a copy so a failed relay evaluation leaves the committed
	// snapshot untouched.
	next := snap.copy()
	next.Powered = probe.Powered
	next.CrewCount = probe.CrewCount
	next.CrewCapacity = probe.CrewCapacity
	next.Malfunction = probe.Malfunction
	next.Critical = probe.Critical
	next.Habitat = probe.Habitat

	env := deriveEnvironment(sample, v, body)
	c.applyAnalytic(ctx, v, body, &next, &env, now)
	next.Environment = env

	conn, err := c.budget.Evaluate(ctx, v, probe.Powered, sample.StormBlackout)
	if err != nil {
		return err
	}
	next.Connection = conn
	next.CanTransmit = conn.Rate > c.thresholds.MinimumTransmitRate
	next.Transmitting = ""
	if conn.Linked && conn.Rate > epsilon {
		next.Transmitting = probe.Transmitting
	}

	first := snap.FirstEvaluation
	field := next.RadiationField()
	fieldChanged := first || field != snap.RadiationField()
	transmitChanged := first || next.CanTransmit != snap.CanTransmit || next.Transmitting != snap.Transmitting

	next.Stale = false
	next.FirstEvaluation = false
	next.Generation++
	next.LastRefresh = now
	*snap = next

	if fieldChanged {
		c.notify(notify.RadiationFieldChanged, id, notify.RadiationField{
			InnerBelt:     field.InnerBelt,
			OuterBelt:     field.OuterBelt,
			Magnetosphere: field.Magnetosphere,
		})
	}
	if transmitChanged {
		c.notify(notify.TransmitStateChanged, id, notify.TransmitState{
			Transmitting: next.Transmitting,
			CanTransmit:  next.CanTransmit,
		})
	}
	return nil
}

func (c *VesselStateCache) notify(kind notify.EventKind, id model.VesselID, payload any) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(kind, id, payload)
}

func refreshMode(snap *VesselSnapshot) string {
	switch {
	case !snap.IsValid:
		return "invalid"
	case snap.Analytic:
		return "analytic"
	default:
		return "discrete"
	}
}

func refreshResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCorruptPosition):
		return "corrupt"
	case errors.Is(err, ErrTopologyCycle):
		return "cycle"
	default:
		return "error"
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time    { return time.Now() }
func (wallClock) WarpRate() float64 { return 1 }
