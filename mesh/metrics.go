package mesh

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registration counters on a private registry so several
// instances (tests, multiple apps) do not collide. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	AlignmentAttempts   *prometheus.CounterVec
	RegistrationPasses  prometheus.Counter
	RegistrationSeconds prometheus.Histogram
	ScannersRegistered  prometheus.Gauge
	Landmarks           prometheus.Gauge
	MaxScannerDistance  prometheus.Gauge
}

// NewMetrics creates and registers the probemesh collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AlignmentAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "probemesh_alignment_attempts_total",
			Help: "Pairwise alignment attempts by result.",
		}, []string{"result"}),
		RegistrationPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "probemesh_registration_passes_total",
			Help: "Registration passes run.",
		}),
		RegistrationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "probemesh_registration_seconds",
			Help:    "Wall time of registration runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ScannersRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "probemesh_scanners_registered",
			Help: "Scanners registered in the latest run, reference included.",
		}),
		Landmarks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "probemesh_landmarks",
			Help: "Distinct landmarks in the latest global frame.",
		}),
		MaxScannerDistance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "probemesh_max_scanner_distance",
			Help: "Largest manhattan distance between scanners in the latest global frame.",
		}),
	}
	m.Registry.MustRegister(
		m.AlignmentAttempts,
		m.RegistrationPasses,
		m.RegistrationSeconds,
		m.ScannersRegistered,
		m.Landmarks,
		m.MaxScannerDistance,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeAttempt(ok bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "aligned"
	}
	m.AlignmentAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) observePass() {
	if m == nil {
		return
	}
	m.RegistrationPasses.Inc()
}

func (m *Metrics) observeRegistration(d time.Duration, registered int) {
	if m == nil {
		return
	}
	m.RegistrationSeconds.Observe(d.Seconds())
	m.ScannersRegistered.Set(float64(registered))
}

func (m *Metrics) observeFrame(f *GlobalFrame) {
	if m == nil || f == nil {
		return
	}
	m.Landmarks.Set(float64(f.LandmarkCount()))
	m.MaxScannerDistance.Set(float64(f.MaxScannerDistance()))
}
