package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SimCollector exposes vessel state cache and tick metrics. It satisfies
// core.CacheMetrics, notify.Recorder and sim.TickMetrics.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Refreshes       *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	FastPathHits    prometheus.Counter
	CachedVessels   prometheus.Gauge
	Notifications   *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	TickVessels     prometheus.Gauge
	TickFailures    *prometheus.CounterVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	refreshes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vesselsim_cache_refreshes_total",
		Help: "Vessel snapshot recomputations, labeled by mode and result.",
	}, []string{"mode", "result"}), "vesselsim_cache_refreshes_total")
	if err != nil {
		return nil, err
	}

	refreshDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vesselsim_cache_refresh_duration_seconds",
		Help:    "Duration of vessel snapshot recomputations.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"mode"}), "vesselsim_cache_refresh_duration_seconds")
	if err != nil {
		return nil, err
	}

	fastPath, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vesselsim_cache_fast_path_total",
		Help: "Refresh calls answered from a non-stale snapshot.",
	}), "vesselsim_cache_fast_path_total")
	if err != nil {
		return nil, err
	}

	cached, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vesselsim_cache_vessels",
		Help: "Number of vessel snapshots held by the cache.",
	}), "vesselsim_cache_vessels")
	if err != nil {
		return nil, err
	}

	notifications, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vesselsim_notifications_total",
		Help: "Change notifications delivered, labeled by kind.",
	}, []string{"kind"}), "vesselsim_notifications_total")
	if err != nil {
		return nil, err
	}

	tickDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vesselsim_tick_duration_seconds",
		Help:    "Wall time spent processing one simulation tick.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "vesselsim_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	tickVessels, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vesselsim_tick_vessels",
		Help: "Vessels hosted during the last tick.",
	}), "vesselsim_tick_vessels")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vesselsim_tick_failures_total",
		Help: "Vessels that failed to refresh during a tick, labeled by reason.",
	}, []string{"reason"}), "vesselsim_tick_failures_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:        gatherer,
		Refreshes:       refreshes,
		RefreshDuration: refreshDuration,
		FastPathHits:    fastPath,
		CachedVessels:   cached,
		Notifications:   notifications,
		TickDuration:    tickDuration,
		TickVessels:     tickVessels,
		TickFailures:    failures,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRefresh records one snapshot recomputation.
func (c *SimCollector) ObserveRefresh(mode, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.Refreshes.WithLabelValues(mode, result).Inc()
	c.RefreshDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordFastPath counts a refresh answered without recomputation.
func (c *SimCollector) RecordFastPath() {
	if c == nil {
		return
	}
	c.FastPathHits.Inc()
}

// SetCachedVessels updates the cache size gauge.
func (c *SimCollector) SetCachedVessels(n int) {
	if c == nil {
		return
	}
	c.CachedVessels.Set(float64(n))
}

// RecordNotification counts a delivered notification.
func (c *SimCollector) RecordNotification(kind string) {
	if c == nil {
		return
	}
	c.Notifications.WithLabelValues(kind).Inc()
}

// ObserveTick records the duration of one tick.
func (c *SimCollector) ObserveTick(d time.Duration, vessels int) {
	if c == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
	c.TickVessels.Set(float64(vessels))
}

// RecordTickFailure counts a vessel that failed to refresh.
func (c *SimCollector) RecordTickFailure(reason string) {
	if c == nil {
		return
	}
	c.TickFailures.WithLabelValues(reason).Inc()
}
