// Package metrics exposes Prometheus instrumentation for harvest outcomes
// and device rotation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	tracksHarvested  *prometheus.CounterVec
	harvestFailures  *prometheus.CounterVec
	rateLimitEvents  *prometheus.CounterVec
	deviceRotations  prometheus.Counter
	devicesAvailable prometheus.Gauge
	batchDuration    prometheus.Histogram
}

// New registers the harvester metrics on the default registry. Call once per
// process.
func New() *Metrics {
	return &Metrics{
		tracksHarvested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cratedigger_tracks_harvested_total",
			Help: "Total tracks successfully harvested, by source",
		}, []string{"source"}),
		harvestFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cratedigger_harvest_failures_total",
			Help: "Total failed download attempts, by failure reason",
		}, []string{"reason"}),
		rateLimitEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cratedigger_rate_limit_events_total",
			Help: "Total detected throttling incidents, by kind",
		}, []string{"kind"}),
		deviceRotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cratedigger_device_rotations_total",
			Help: "Total times the harvester switched to another device",
		}),
		devicesAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cratedigger_devices_available",
			Help: "Devices currently active and out of cooldown",
		}),
		batchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cratedigger_batch_duration_seconds",
			Help:    "Wall time of a harvest batch",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
	}
}

// Handler returns the Prometheus HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) TrackHarvested(source string) {
	m.tracksHarvested.WithLabelValues(source).Inc()
}

func (m *Metrics) HarvestFailure(reason string) {
	m.harvestFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) RateLimitEvent(kind string) {
	m.rateLimitEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) DeviceRotation() {
	m.deviceRotations.Inc()
}

func (m *Metrics) DevicesAvailable(n int) {
	m.devicesAvailable.Set(float64(n))
}

func (m *Metrics) BatchDuration(d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
}
