package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all scheduler metrics
type Registry struct {
	// Tick Metrics
	TicksTotal     *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	RollbacksTotal prometheus.Counter

	// Train Metrics
	MovesTotal          *prometheus.CounterVec
	MoveStallsTotal     prometheus.Counter
	RouteFallbacksTotal prometheus.Counter
	IdleTrainsTotal     *prometheus.CounterVec

	// Economy Metrics
	ArmorSpent prometheus.Gauge
	Score      prometheus.Gauge
	GameTick   prometheus.Gauge

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry, which also exports Go
// runtime and process collectors.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return defaultRegistry
}

// NewRegistry creates an isolated registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}
	r.initTickMetrics()
	r.initTrainMetrics()
	r.initEconomyMetrics()
	return r
}

func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
