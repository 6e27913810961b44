// Package metrics exposes Prometheus instrumentation for the scoring service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mchmarny/dropscore/pkg/score"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dropscore"

// Recorder holds the service collectors on its own registry.
type Recorder struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New returns a recorder with every collector registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Scored records by risk tier.",
		}, []string{"tier"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed scoring operations by kind.",
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent scoring by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	r.registry.MustRegister(
		r.predictions,
		r.errors,
		r.requests,
		r.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-populate tiers so they show up before the first prediction.
	for _, t := range score.Tiers() {
		r.predictions.WithLabelValues(string(t))
	}
	return r
}

// Scored records one result per tier.
func (r *Recorder) Scored(results ...*score.Result) {
	for _, res := range results {
		if res != nil {
			r.predictions.WithLabelValues(string(res.Tier)).Inc()
		}
	}
}

// Failed records a failure of kind.
func (r *Recorder) Failed(kind string) {
	r.errors.WithLabelValues(kind).Inc()
}

// Request records a served request.
func (r *Recorder) Request(route string, code int) {
	r.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Observe records the time elapsed since start for op.
func (r *Recorder) Observe(op string, start time.Time) {
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
