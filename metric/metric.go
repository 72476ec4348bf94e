// Package metric provides the runtime's prometheus instrumentation:
// a registry owning the core dispatch metrics, plus registration
// helpers for extension-defined collectors.
package metric

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/flowmesh/errors"
)

// Metrics holds the core runtime metrics.
type Metrics struct {
	EnvelopesRouted   *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	FanoutWidth       prometheus.Histogram
	LifecycleAcks     *prometheus.CounterVec
	GraphsRunning     prometheus.Gauge
	ResultsCorrelated prometheus.Counter
}

// NewMetrics creates the core metric set.
func NewMetrics() *Metrics {
	return &Metrics{
		EnvelopesRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowmesh",
				Subsystem: "dispatch",
				Name:      "envelopes_routed_total",
				Help:      "Envelopes routed, by kind",
			},
			[]string{"kind"},
		),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowmesh",
				Subsystem: "dispatch",
				Name:      "delivery_failures_total",
				Help:      "Failed sends, by error code",
			},
			[]string{"code"},
		),
		FanoutWidth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "flowmesh",
				Subsystem: "dispatch",
				Name:      "fanout_width",
				Help:      "Destinations resolved per routed envelope",
				Buckets:   []float64{1, 2, 4, 8, 16, 32},
			},
		),
		LifecycleAcks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flowmesh",
				Subsystem: "lifecycle",
				Name:      "acks_total",
				Help:      "Extension lifecycle acks, by state",
			},
			[]string{"state"},
		),
		GraphsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "flowmesh",
				Subsystem: "dispatch",
				Name:      "graphs_running",
				Help:      "Graphs currently started",
			},
		),
		ResultsCorrelated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "flowmesh",
				Subsystem: "dispatch",
				Name:      "results_correlated_total",
				Help:      "Command results matched to an outstanding command",
			},
		),
	}
}

// Registry owns a prometheus registry preloaded with the core runtime
// metrics and the Go runtime collectors.
type Registry struct {
	prom    *prometheus.Registry
	Metrics *Metrics

	mu         sync.Mutex
	registered map[string]prometheus.Collector
}

// NewRegistry creates a registry with the core metrics installed.
func NewRegistry() *Registry {
	r := &Registry{
		prom:       prometheus.NewRegistry(),
		Metrics:    NewMetrics(),
		registered: map[string]prometheus.Collector{},
	}
	r.prom.MustRegister(
		r.Metrics.EnvelopesRouted,
		r.Metrics.DeliveryFailures,
		r.Metrics.FanoutWidth,
		r.Metrics.LifecycleAcks,
		r.Metrics.GraphsRunning,
		r.Metrics.ResultsCorrelated,
	)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Prometheus returns the underlying prometheus registry for scraping.
func (r *Registry) Prometheus() *prometheus.Registry { return r.prom }

// Register adds an extension-defined collector under owner.name.
func (r *Registry) Register(owner, name string, c prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", owner, name)
	if _, exists := r.registered[key]; exists {
		return errors.Newf(errors.CodeInvalidArgument, "metric %s already registered", key)
	}
	if err := r.prom.Register(c); err != nil {
		return errors.WrapCode(errors.CodeInvalidArgument, err, "prometheus registration failed")
	}
	r.registered[key] = c
	return nil
}

// Unregister removes a previously registered collector.
func (r *Registry) Unregister(owner, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", owner, name)
	c, ok := r.registered[key]
	if !ok {
		return false
	}
	delete(r.registered, key)
	return r.prom.Unregister(c)
}
