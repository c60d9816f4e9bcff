package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, o.(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationGrows(t *testing.T) {
	timer := NewTimer()
	first := timer.Duration()
	time.Sleep(20 * time.Millisecond)
	second := timer.Duration()

	assert.GreaterOrEqual(t, first, time.Duration(0))
	assert.GreaterOrEqual(t, second, 20*time.Millisecond)
	assert.Greater(t, second, first)
}

func TestTimerObserve(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_duration_vec_seconds",
		Help: "Test duration histogram vec",
	}, []string{"method"})

	timer := NewTimer()
	timer.ObserveDuration(histogram)
	timer.ObserveDurationVec(vec, "Request")
	timer.ObserveDurationVec(vec, "Produce")

	assert.Equal(t, uint64(1), sampleCount(t, histogram))
	assert.Equal(t, uint64(1), sampleCount(t, vec.WithLabelValues("Request")))
	assert.Equal(t, uint64(1), sampleCount(t, vec.WithLabelValues("Produce")))
}

type staticSource []BankSize

func (s staticSource) BankSizes() []BankSize { return s }

func TestCollectorCopiesBankSizes(t *testing.T) {
	c := NewCollector(staticSource{
		{Name: "test-host", Subscriptions: 4, Keys: 2},
		{Name: "test-varrev", Subscriptions: 9, Keys: 9},
	}, 0)
	assert.Equal(t, 15*time.Second, c.interval)

	c.Collect()

	assert.Equal(t, 4.0, gaugeValue(t, Subscriptions.WithLabelValues("test-host")))
	assert.Equal(t, 2.0, gaugeValue(t, SubscriptionKeys.WithLabelValues("test-host")))
	assert.Equal(t, 9.0, gaugeValue(t, Subscriptions.WithLabelValues("test-varrev")))
}
