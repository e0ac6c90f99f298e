package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// PromMetrics implements agentcore.MetricsRegistry over a dedicated
// prometheus.Registry, exposed as GET /metrics in Prometheus text format
// (spec.md §6). Wired per SPEC_FULL.md §11: the teacher's telemetry stack
// uses OTel metrics exclusively, but spec.md asks for "Prometheus-style
// metrics" literally, so this module adds client_golang (pulled from the
// sibling BaSui01-agentflow example) as the metrics backend while OTel
// remains the tracing backend.
type PromMetrics struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPromMetrics builds a fresh registry with Go runtime collectors attached,
// matching the conventional client_golang bootstrap.
func NewPromMetrics() *PromMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return &PromMetrics{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler returns the http.Handler to mount at GET /metrics.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (m *PromMetrics) counterFor(name string, labels map[string]string) *prometheus.CounterVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
	m.registry.MustRegister(c)
	m.counters[name] = c
	return c
}

func (m *PromMetrics) gaugeFor(name string, labels map[string]string) *prometheus.GaugeVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, labelNames(labels))
	m.registry.MustRegister(g)
	m.gauges[name] = g
	return g
}

func (m *PromMetrics) histogramFor(name string, labels map[string]string) *prometheus.HistogramVec {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: name}, labelNames(labels))
	m.registry.MustRegister(h)
	m.histograms[name] = h
	return h
}

// IncrCounter implements agentcore.MetricsRegistry.
func (m *PromMetrics) IncrCounter(name string, labels map[string]string) {
	m.counterFor(name, labels).With(labels).Inc()
}

// ObserveHistogram implements agentcore.MetricsRegistry.
func (m *PromMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	m.histogramFor(name, labels).With(labels).Observe(value)
}

// SetGauge implements agentcore.MetricsRegistry.
func (m *PromMetrics) SetGauge(name string, value float64, labels map[string]string) {
	m.gaugeFor(name, labels).With(labels).Set(value)
}
