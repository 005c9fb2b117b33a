package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTickMetrics() {
	r.TicksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railhaul_ticks_total",
			Help: "Total number of scheduler ticks by outcome",
		},
		[]string{"status"},
	)

	r.TickDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "railhaul_tick_duration_seconds",
			Help:    "Scheduler tick duration in seconds, including dispatch and end of turn",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
	)

	r.RollbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "railhaul_rollbacks_total",
			Help: "Total number of ticks whose economic state was rolled back",
		},
	)
}

func (r *Registry) initTrainMetrics() {
	r.MovesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railhaul_moves_total",
			Help: "Total number of dispatched move requests by result",
		},
		[]string{"result"},
	)

	r.MoveStallsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "railhaul_move_stalls_total",
			Help: "Moves downgraded to a stop because the next cell was reserved",
		},
	)

	r.RouteFallbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "railhaul_route_fallbacks_total",
			Help: "Route or target searches that succeeded only with relaxed constraints",
		},
	)

	r.IdleTrainsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "railhaul_idle_trains_total",
			Help: "Trains that got no move in a tick by reason",
		},
		[]string{"reason"},
	)
}

func (r *Registry) initEconomyMetrics() {
	r.ArmorSpent = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "railhaul_armor_spent",
			Help: "Armor spent on upgrades since the game started",
		},
	)

	r.Score = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "railhaul_score",
			Help: "Current home town rating",
		},
	)

	r.GameTick = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "railhaul_game_tick",
			Help: "Last committed game tick",
		},
	)
}
