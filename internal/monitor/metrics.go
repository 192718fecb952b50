package monitor

import (
	"net/http"
	"time"

	"github.com/banshee-data/fieldstate/internal/vision"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fieldstate"

// Metrics exposes cycle counters on a private registry so tests and
// multiple pipelines never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	cycles          prometheus.Counter
	frames          prometheus.Counter
	detections      *prometheus.CounterVec
	tracksCreated   prometheus.Counter
	tracksEvicted   prometheus.Counter
	dropped         *prometheus.CounterVec
	ballSensorObs   prometheus.Counter
	liveTracks      *prometheus.GaugeVec
	ballPredicted   prometheus.Gauge
	cycleTimestamp  prometheus.Gauge
	cycleDuration   prometheus.Histogram
	visionPackets   prometheus.Gauge
	visionDecodeErr prometheus.Gauge
}

// NewMetrics builds and registers the world-model metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "total",
			Help: "World-model cycles run.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vision", Name: "frames_total",
			Help: "Vision frames consumed by the world model.",
		}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "vision", Name: "detections_total",
			Help: "Detections consumed by the world model.",
		}, []string{"kind"}),
		tracksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracks", Name: "created_total",
			Help: "Robot tracks created.",
		}),
		tracksEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracks", Name: "evicted_total",
			Help: "Robot tracks evicted after losing validity.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tracks", Name: "dropped_observations_total",
			Help: "Observations discarded before reaching a filter.",
		}, []string{"reason"}),
		ballSensorObs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ball", Name: "sensor_observations_total",
			Help: "Ball observations synthesised from robot ball sensors.",
		}),
		liveTracks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "tracks", Name: "live",
			Help: "Live robot tracks after the last cycle.",
		}, []string{"team"}),
		ballPredicted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "ball", Name: "predicted",
			Help: "1 when the last published ball came from the filter prediction, 0 for raw.",
		}),
		cycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "timestamp_seconds",
			Help: "Cycle time of the last published state.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "duration_seconds",
			Help:    "Wall time spent in one cycle.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		visionPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vision", Name: "packets",
			Help: "UDP packets received by the vision listener.",
		}),
		visionDecodeErr: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "vision", Name: "decode_errors",
			Help: "Vision packets that failed to decode.",
		}),
	}

	m.registry.MustRegister(
		m.cycles, m.frames, m.detections, m.tracksCreated, m.tracksEvicted,
		m.dropped, m.ballSensorObs, m.liveTracks, m.ballPredicted,
		m.cycleTimestamp, m.cycleDuration, m.visionPackets, m.visionDecodeErr,
	)
	return m
}

// ObserveCycle records one cycle's statistics and how long it took.
func (m *Metrics) ObserveCycle(stats worldmodel.CycleStats, took time.Duration) {
	m.cycles.Inc()
	m.frames.Add(float64(stats.Frames))
	m.detections.WithLabelValues("ball").Add(float64(stats.BallDetections))
	m.detections.WithLabelValues("robot").Add(float64(stats.RobotDetections))
	m.tracksCreated.Add(float64(stats.TracksCreated))
	m.tracksEvicted.Add(float64(stats.TracksEvicted))
	m.dropped.WithLabelValues("saturated").Add(float64(stats.DroppedSaturated))
	m.dropped.WithLabelValues("out_of_roster").Add(float64(stats.DroppedOutOfRoster))
	m.dropped.WithLabelValues("telemetry").Add(float64(stats.TelemetryDropped))
	m.ballSensorObs.Add(float64(stats.BallSensorObservations))
	m.liveTracks.WithLabelValues("self").Set(float64(stats.LiveSelf))
	m.liveTracks.WithLabelValues("opp").Set(float64(stats.LiveOpp))
	if stats.BallMode == worldmodel.BallPredicted {
		m.ballPredicted.Set(1)
	} else {
		m.ballPredicted.Set(0)
	}
	m.cycleTimestamp.Set(float64(stats.Timestamp) / 1e6)
	m.cycleDuration.Observe(took.Seconds())
}

// ObserveVision copies the listener's cumulative counters.
func (m *Metrics) ObserveVision(s vision.PacketStatsSnapshot) {
	m.visionPackets.Set(float64(s.Packets))
	m.visionDecodeErr.Set(float64(s.DecodeErrors))
}

// Registry returns the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
