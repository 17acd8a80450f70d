// Package metrics provides a small interface for instrumenting the
// server, so the core packages report events to a caller-supplied
// recorder instead of a fixed backend.
package metrics

import "net/http"

// Labels represents a collection of labels (key-value pairs) for a metric.
type Labels map[string]string

// Recorder is the instrumentation interface the server components use.
type Recorder interface {
	// IncCounter increments a counter by 1.
	IncCounter(name string, labels Labels)

	// AddToCounter adds a float64 value to a counter.
	AddToCounter(name string, labels Labels, value float64)

	// SetGauge sets the value of a gauge.
	SetGauge(name string, labels Labels, value float64)

	// Handler returns an http.Handler exposing the metrics for
	// scraping, or nil if the backend has nothing to expose.
	Handler() http.Handler
}

// noopRecorder is used when metrics are disabled, avoiding nil checks.
type noopRecorder struct{}

// NewNoopRecorder returns a recorder that discards everything.
func NewNoopRecorder() Recorder {
	return &noopRecorder{}
}

func (r *noopRecorder) IncCounter(name string, labels Labels)                  {}
func (r *noopRecorder) AddToCounter(name string, labels Labels, value float64) {}
func (r *noopRecorder) SetGauge(name string, labels Labels, value float64)     {}
func (r *noopRecorder) Handler() http.Handler                                  { return nil }
