package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.TicksTotal == nil || r.MovesTotal == nil || r.Score == nil {
		t.Fatal("metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Fatal("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestRecordTick(t *testing.T) {
	r := NewRegistry()

	r.RecordTick("committed", 20*time.Millisecond)
	r.RecordTick("committed", 30*time.Millisecond)
	r.RecordTick("rolled_back", 10*time.Millisecond)

	committed, err := r.TicksTotal.GetMetricWithLabelValues("committed")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if got := counterValue(t, committed); got != 2 {
		t.Errorf("committed ticks = %v, want 2", got)
	}

	var metric dto.Metric
	if err := r.TickDuration.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("duration samples = %v, want 3", metric.Histogram.GetSampleCount())
	}
}

func TestRecordTrainOutcomes(t *testing.T) {
	r := NewRegistry()

	r.RecordMove("ok")
	r.RecordMove("error")
	r.RecordStall()
	r.RecordRouteFallback()
	r.RecordRouteFallback()
	r.RecordIdle("farming")
	r.RecordRollback()

	failed, err := r.MovesTotal.GetMetricWithLabelValues("error")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}
	if got := counterValue(t, failed); got != 1 {
		t.Errorf("failed moves = %v, want 1", got)
	}
	if got := counterValue(t, r.RouteFallbacksTotal); got != 2 {
		t.Errorf("fallbacks = %v, want 2", got)
	}
	if got := counterValue(t, r.RollbacksTotal); got != 1 {
		t.Errorf("rollbacks = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateEconomy(12, 40, 3165)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"railhaul_score 3165", "railhaul_armor_spent 40", "railhaul_game_tick 12"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
