package observability

import (
	"testing"

	"github.com/ethoslog/internal/progress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProgressMetricsCount(t *testing.T) {
	m := NewProgressMetrics(prometheus.NewRegistry())

	m.ContractProcessed(progress.ActionTaskCompleted, "applied")
	m.ContractProcessed(progress.ActionTaskCompleted, "applied")
	m.ContractProcessed("", "failed")
	m.XPGranted(progress.SourceTasks, 10)
	m.XPGranted(progress.SourceTasks, -5)
	m.Clamped()
	m.LevelUp()

	cases := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"applied contracts", m.ContractsTotal.WithLabelValues("task_completed", "applied"), 2},
		{"failed contracts", m.ContractsTotal.WithLabelValues("unknown", "failed"), 1},
		{"xp awarded", m.XPAwardedTotal.WithLabelValues(progress.SourceTasks), 10},
		{"clamps", m.ReversalClampsTotal, 1},
		{"level ups", m.LevelUpsTotal, 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}
}
