// Package metrics exposes the detector's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veil-waf/veil-detect/internal/detect"
)

const namespace = "veil"

// Metrics holds every instrument on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	verdicts         *prometheus.CounterVec
	classifyDuration prometheus.Histogram
	reports          *prometheus.CounterVec
	reportsDropped   prometheus.Counter
	ruleReloads      *prometheus.CounterVec
}

// New creates and registers the instruments, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Classified requests by attack type and block decision.",
		}, []string{"attack_type", "blocked"}),
		classifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Time spent classifying one request.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Attack events handed to the reporter by outcome.",
		}, []string{"result"}),
		reportsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_dropped_total",
			Help:      "Attack events dropped because the report queue was full.",
		}),
		ruleReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_reloads_total",
			Help:      "Rule document reloads by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.verdicts,
		m.classifyDuration,
		m.reports,
		m.reportsDropped,
		m.ruleReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveVerdict records one classification.
func (m *Metrics) ObserveVerdict(v detect.Verdict, took time.Duration) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(string(v.AttackType), strconv.FormatBool(v.ShouldBlock)).Inc()
	m.classifyDuration.Observe(took.Seconds())
}

// ReportSent records a delivery attempt; err nil means success.
func (m *Metrics) ReportSent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reports.WithLabelValues("error").Inc()
		return
	}
	m.reports.WithLabelValues("ok").Inc()
}

// ReportDropped records an event lost to a full queue.
func (m *Metrics) ReportDropped() {
	if m == nil {
		return
	}
	m.reportsDropped.Inc()
}

// RulesReloaded records a reload; warnings means the document was applied
// with some fields rejected.
func (m *Metrics) RulesReloaded(warnings bool) {
	if m == nil {
		return
	}
	if warnings {
		m.ruleReloads.WithLabelValues("warnings").Inc()
		return
	}
	m.ruleReloads.WithLabelValues("ok").Inc()
}
