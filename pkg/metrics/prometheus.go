package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder on top of a private Prometheus
// registry. Metric vectors are created lazily on first use.
type PrometheusRecorder struct {
	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	registry *prometheus.Registry
}

// NewPrometheusRecorder creates a new Prometheus recorder.
func NewPrometheusRecorder() Recorder {
	return &PrometheusRecorder{
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
		registry: prometheus.NewRegistry(),
	}
}

// metricKey identifies a vector by name plus its sorted label keys.
func metricKey(name string, labels Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return name + ";" + strings.Join(keys, ",")
}

func labelKeys(labels Labels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IncCounter increments a counter by 1.
func (r *PrometheusRecorder) IncCounter(name string, labels Labels) {
	r.getCounter(name, labels).With(prometheus.Labels(labels)).Inc()
}

// AddToCounter adds a float64 value to a counter.
func (r *PrometheusRecorder) AddToCounter(name string, labels Labels, value float64) {
	r.getCounter(name, labels).With(prometheus.Labels(labels)).Add(value)
}

// SetGauge sets the value of a gauge.
func (r *PrometheusRecorder) SetGauge(name string, labels Labels, value float64) {
	r.getGauge(name, labels).With(prometheus.Labels(labels)).Set(value)
}

// Handler returns the scrape endpoint for the private registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) getCounter(name string, labels Labels) *prometheus.CounterVec {
	key := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[key]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelKeys(labels))
	r.registry.MustRegister(c)
	r.counters[key] = c
	return c
}

func (r *PrometheusRecorder) getGauge(name string, labels Labels) *prometheus.GaugeVec {
	key := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gauges[key]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelKeys(labels))
	r.registry.MustRegister(g)
	r.gauges[key] = g
	return g
}
