package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する。nil でも記録系メソッドは安全に呼べる
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 保留の取得試行（domain, result: acquired, conflict, not_found, error）
	HoldAttemptsTotal *prometheus.CounterVec

	// 予約確定の結果（domain, result: confirmed, idempotent, hold_rejected, payment_failed, conflict, error）
	BookingsTotal *prometheus.CounterVec

	// 予約確定にかかった時間（domain）
	BookingConfirmDuration *prometheus.HistogramVec

	// 期限切れで解放された保留の数
	HoldsReleasedTotal prometheus.Counter

	// 期限切れにしたPENDING予約の数
	StaleBookingsExpiredTotal prometheus.Counter

	// 分散ロックの操作時間（operation: acquire/release, status: success/failed）
	DistributedLockDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HoldAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hold_attempts_total",
				Help: "Total number of unit hold attempts",
			},
			[]string{"domain", "result"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Total number of booking confirmation outcomes",
			},
			[]string{"domain", "result"},
		),
		BookingConfirmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "booking_confirm_duration_seconds",
				Help:    "Time spent confirming a booking including payment",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 3, 5, 10},
			},
			[]string{"domain"},
		),
		HoldsReleasedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "holds_released_total",
				Help: "Total number of lapsed holds returned to available",
			},
		),
		StaleBookingsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stale_bookings_expired_total",
				Help: "Total number of pending bookings expired by the sweeper",
			},
		),
		DistributedLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "distributed_lock_duration_seconds",
				Help:    "Time spent on distributed lock operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HoldAttemptsTotal,
		m.BookingsTotal,
		m.BookingConfirmDuration,
		m.HoldsReleasedTotal,
		m.StaleBookingsExpiredTotal,
		m.DistributedLockDuration,
	)

	return m
}

func (m *Metrics) RecordHoldAttempt(domain, result string) {
	if m == nil {
		return
	}
	m.HoldAttemptsTotal.WithLabelValues(domain, result).Inc()
}

func (m *Metrics) RecordBooking(domain, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BookingsTotal.WithLabelValues(domain, result).Inc()
	m.BookingConfirmDuration.WithLabelValues(domain).Observe(elapsed.Seconds())
}

func (m *Metrics) AddHoldsReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HoldsReleasedTotal.Add(float64(n))
}

func (m *Metrics) AddStaleBookingsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StaleBookingsExpiredTotal.Add(float64(n))
}

func (m *Metrics) ObserveLock(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}
