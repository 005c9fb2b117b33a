package metrics

import (
	"time"
)

// RecordTick records a finished tick with its duration
func (r *Registry) RecordTick(status string, duration time.Duration) {
	r.TicksTotal.WithLabelValues(status).Inc()
	r.TickDuration.Observe(duration.Seconds())
}

func (r *Registry) RecordRollback() {
	r.RollbacksTotal.Inc()
}

// RecordMove records the outcome of one dispatched move request
func (r *Registry) RecordMove(result string) {
	r.MovesTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RecordStall() {
	r.MoveStallsTotal.Inc()
}

func (r *Registry) RecordRouteFallback() {
	r.RouteFallbacksTotal.Inc()
}

// RecordIdle records a train left without a move
func (r *Registry) RecordIdle(reason string) {
	r.IdleTrainsTotal.WithLabelValues(reason).Inc()
}

// UpdateEconomy publishes the cumulative economic counters
func (r *Registry) UpdateEconomy(gameTick int, spentArmor, score float64) {
	r.GameTick.Set(float64(gameTick))
	r.ArmorSpent.Set(spentArmor)
	r.Score.Set(score)
}
