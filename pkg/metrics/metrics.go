package metrics

import (
	"net/http"
	"time"

	"replybot/pkg/rule"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "replybot"

// Registry owns the process metrics and implements the engine observer.
type Registry struct {
	registry *prometheus.Registry

	resolutions *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rules       *prometheus.GaugeVec
	reloads     *prometheus.CounterVec
}

// NewRegistry registers the reply metrics plus Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replies",
				Name:      "resolved_total",
				Help:      "Messages resolved, by matching tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "replies",
				Name:      "anomalies_total",
				Help:      "Non-fatal resolution problems, by category",
			},
			[]string{"category"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "replies",
				Name:      "resolve_duration_seconds",
				Help:      "Time spent matching and rendering one message",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
			},
			[]string{"tier"},
		),
		rules: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "loaded",
				Help:      "Rules in the current snapshot, by type",
			},
			[]string{"type"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rules",
				Name:      "reloads_total",
				Help:      "Rule file reload attempts, by outcome",
			},
			[]string{"outcome"},
		),
	}

	r.registry.MustRegister(
		r.resolutions,
		r.anomalies,
		r.duration,
		r.rules,
		r.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveResolution(tier string, elapsed time.Duration, err error) {
	outcome := "resolved"
	if err != nil {
		outcome = rule.CategoryFromError(err)
	}

	r.resolutions.WithLabelValues(tier, outcome).Inc()
	r.duration.WithLabelValues(tier).Observe(elapsed.Seconds())
}

func (r *Registry) ObserveAnomaly(category string) {
	r.anomalies.WithLabelValues(category).Inc()
}

// ObserveReload records a rule reload. Pass it as the rule store's reload callback.
func (r *Registry) ObserveReload(snap *rule.Snapshot, err error) {
	if err != nil {
		r.reloads.WithLabelValues("failed").Inc()
		return
	}

	r.reloads.WithLabelValues("loaded").Inc()
	r.ObserveSnapshot(snap)
}

// ObserveSnapshot sets the per-type rule gauges from snap.
func (r *Registry) ObserveSnapshot(snap *rule.Snapshot) {
	counts := snap.Counts()
	for _, t := range rule.Types() {
		r.rules.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}
