package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for jaston-setup.
type Metrics struct {
	registry             *prometheus.Registry
	phaseDurationSeconds *prometheus.HistogramVec
	checksTotal          *prometheus.GaugeVec
	remediationsTotal    *prometheus.CounterVec
	servicesRunning      prometheus.Gauge
	lastSetupSuccess     prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		phaseDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jaston_setup_phase_duration_seconds",
			Help:    "Duration of setup phases in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		checksTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jaston_setup_checks_total",
			Help: "Environment check results by battery and outcome.",
		}, []string{"battery", "outcome"}),
		remediationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jaston_setup_remediations_total",
			Help: "Automatic remediation attempts by kind and result.",
		}, []string{"kind", "result"}),
		servicesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jaston_setup_services_running",
			Help: "Number of managed services currently running.",
		}),
		lastSetupSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jaston_setup_last_success_timestamp",
			Help: "Unix timestamp of the last fully successful setup run.",
		}),
	}

	registry.MustRegister(
		m.phaseDurationSeconds,
		m.checksTotal,
		m.remediationsTotal,
		m.servicesRunning,
		m.lastSetupSuccess,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePhaseDuration records the duration of a completed phase.
func (m *Metrics) ObservePhaseDuration(phase string, duration time.Duration) {
	if m == nil {
		return
	}
	m.phaseDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// SetChecksTotal sets the check gauge for the given battery/outcome.
func (m *Metrics) SetChecksTotal(battery string, outcome string, value int) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(battery, outcome).Set(float64(value))
}

// IncRemediations increments the remediation counter for the given kind/result.
func (m *Metrics) IncRemediations(kind string, result string) {
	if m == nil {
		return
	}
	m.remediationsTotal.WithLabelValues(kind, result).Inc()
}

// SetServicesRunning sets the running services gauge.
func (m *Metrics) SetServicesRunning(value int) {
	if m == nil {
		return
	}
	m.servicesRunning.Set(float64(value))
}

// SetLastSetupSuccess records the time of the last fully successful run.
func (m *Metrics) SetLastSetupSuccess(t time.Time) {
	if m == nil {
		return
	}
	m.lastSetupSuccess.Set(float64(t.Unix()))
}
