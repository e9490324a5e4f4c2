package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	// 各テストで新しいレジストリを使用
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	require.NotNil(t, m)
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HoldAttemptsTotal)
	assert.NotNil(t, m.BookingsTotal)
	assert.NotNil(t, m.DistributedLockDuration)
}

func TestHTTPRequestsTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/theater/seats", "200").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/theater/seats/:id/lock", "200").Inc()
	m.HTTPRequestsTotal.WithLabelValues("POST", "/theater/seats/:id/lock", "409").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "http_requests_total" {
			found = true
			assert.Equal(t, 3, len(f.GetMetric()))
		}
	}
	assert.True(t, found, "http_requests_total metric not found")
}

func TestRecordHoldAttempt(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordHoldAttempt("theater", "acquired")
	m.RecordHoldAttempt("theater", "acquired")
	m.RecordHoldAttempt("theater", "conflict")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HoldAttemptsTotal.WithLabelValues("theater", "acquired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HoldAttemptsTotal.WithLabelValues("theater", "conflict")))
}

func TestRecordBooking(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.RecordBooking("bus", "confirmed", 2*time.Second)
	m.RecordBooking("bus", "hold_rejected", 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsTotal.WithLabelValues("bus", "confirmed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BookingConfirmDuration))
}

func TestCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.AddHoldsReleased(3)
	m.AddHoldsReleased(0)
	m.AddStaleBookingsExpired(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HoldsReleasedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleBookingsExpiredTotal))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHoldAttempt("theater", "acquired")
		m.RecordBooking("theater", "confirmed", time.Second)
		m.AddHoldsReleased(1)
		m.AddStaleBookingsExpired(1)
		m.ObserveLock("acquire", "success", time.Millisecond)
	})
}

func TestMetricsRegistration_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewWithRegistry(reg)

	// 同じレジストリに二重登録するとパニック
	assert.Panics(t, func() {
		_ = NewWithRegistry(reg)
	})
}
