package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总兑换服务的 Prometheus 指标
type Metrics struct {
	attempts      *prometheus.CounterVec
	compensations *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	sweeper       *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到 reg；reg 为 nil 时只创建不注册，方便测试
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redemption_attempts_total",
			Help: "Redemption attempts by result (success, duplicated or an error code).",
		}, []string{"result"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redemption_compensations_total",
			Help: "Capacity releases after a failed reward application.",
		}, []string{"outcome"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redemption_apply_duration_seconds",
			Help:    "Time spent applying rewards to external systems.",
			Buckets: prometheus.DefBuckets,
		}, []string{"reward_type"}),
		sweeper: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redemption_sweeper_records_total",
			Help: "Stale pending records handled by the reconciliation sweeper.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.compensations, m.applyDuration, m.sweeper)
	}
	return m
}

func (m *Metrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCompensation(outcome string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveApply(rewardType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.applyDuration.WithLabelValues(rewardType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSweep(outcome string) {
	if m == nil {
		return
	}
	m.sweeper.WithLabelValues(outcome).Inc()
}
