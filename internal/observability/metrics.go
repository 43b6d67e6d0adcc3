// Package observability 为进度协调器提供 Prometheus 计数器。
//
// 指标由路由在 /metrics 暴露，所有操作都可并发调用。
package observability

import (
	"github.com/ethoslog/internal/progress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ethoslog"

const progressSubsystem = "progress"

// ProgressMetrics 保存由协调器更新的计数器
type ProgressMetrics struct {
	// ContractsTotal 已处理的 contract 数
	// 标签：action, outcome (applied, duplicate, noop, fallback, failed)
	ContractsTotal *prometheus.CounterVec

	// XPAwardedTotal 发放的 XP 总量
	// 标签：source
	XPAwardedTotal *prometheus.CounterVec

	// ReversalClampsTotal 冲正触底为 0 的次数
	ReversalClampsTotal prometheus.Counter

	// LevelUpsTotal 使用户升级的 contract 数
	LevelUpsTotal prometheus.Counter
}

// NewProgressMetrics 在 reg 上注册计数器。生产环境传 prometheus.DefaultRegisterer，
// 测试传新的 registry
func NewProgressMetrics(reg prometheus.Registerer) *ProgressMetrics {
	factory := promauto.With(reg)
	return &ProgressMetrics{
		ContractsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: progressSubsystem,
				Name:      "contracts_total",
				Help:      "Progress contracts processed, by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		XPAwardedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: progressSubsystem,
				Name:      "xp_awarded_total",
				Help:      "XP granted, by source",
			},
			[]string{"source"},
		),
		ReversalClampsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: progressSubsystem,
				Name:      "reversal_clamps_total",
				Help:      "Reversals that were clamped at zero XP",
			},
		),
		LevelUpsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: progressSubsystem,
				Name:      "level_ups_total",
				Help:      "Contracts that raised a user's level",
			},
		),
	}
}

var _ progress.Recorder = (*ProgressMetrics)(nil)

func (m *ProgressMetrics) ContractProcessed(action progress.Action, outcome string) {
	if action == "" {
		action = "unknown"
	}
	m.ContractsTotal.WithLabelValues(string(action), outcome).Inc()
}

func (m *ProgressMetrics) XPGranted(source string, amount int) {
	if amount <= 0 {
		return
	}
	m.XPAwardedTotal.WithLabelValues(source).Add(float64(amount))
}

func (m *ProgressMetrics) Clamped() {
	m.ReversalClampsTotal.Inc()
}

func (m *ProgressMetrics) LevelUp() {
	m.LevelUpsTotal.Inc()
}
