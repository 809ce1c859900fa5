package infrastructure

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveAttempt("success")
	m.ObserveAttempt("success")
	m.ObserveAttempt("code_used_up")
	m.ObserveCompensation("ok")
	m.ObserveSweep("failed")
	m.ObserveApply("mantou", 20*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("code_used_up")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sweeper.WithLabelValues("failed")))
	require.Equal(t, 1, testutil.CollectAndCount(m.applyDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("success")
	m.ObserveApply("vip", time.Second)
}
