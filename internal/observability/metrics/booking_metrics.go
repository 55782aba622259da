package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ReserveOutcomeConfirmed   = "confirmed"
	ReserveOutcomeUnavailable = "unavailable"
	ReserveOutcomeNotFound    = "not_found"
	ReserveOutcomeTimeout     = "timeout"
	ReserveOutcomeError       = "error"
)

const (
	ReserveReasonDeadlineExceeded     = "deadline_exceeded"
	ReserveReasonDBLockTimeout        = "db_lock_timeout"
	ReserveReasonSerializationFailure = "serialization_failure"
	ReserveReasonUniqueViolation      = "unique_violation"
	ReserveReasonNotFound             = "not_found"
	ReserveReasonUnknown              = "unknown"
)

const (
	LockResourceSlot          = "slots_by_id"
	LockResourceReservation   = "reservations_by_id"
	LockResourceOutboxForWork = "notification_outbox_for_work"
)

// BookingMetrics captures booking protocol health signals.
type BookingMetrics struct {
	reserveAttempts  *prometheus.CounterVec
	reserveDuration  *prometheus.HistogramVec
	reserveErrors    *prometheus.CounterVec
	meetingFallbacks prometheus.Counter
	outboxPublished  *prometheus.CounterVec
	dbLockWait       *prometheus.HistogramVec
	lockWaitObserver map[string]prometheus.Observer
}

var (
	bookingMetricsOnce sync.Once
	bookingMetrics     *BookingMetrics
)

// Booking returns the singleton booking metrics registry.
func Booking() *BookingMetrics {
	return BookingWithConfig(Config{})
}

// BookingWithConfig returns the singleton booking metrics registry using config labels.
func BookingWithConfig(cfg Config) *BookingMetrics {
	bookingMetricsOnce.Do(func() {
		bookingMetrics = newBookingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return bookingMetrics
}

// ResetBookingMetricsForTest resets the booking metrics singleton for tests.
// Collectors are unregistered so the next fixture can register fresh ones.
func ResetBookingMetricsForTest() {
	if bookingMetrics != nil {
		bookingMetrics.unregister(prometheus.DefaultRegisterer)
	}
	bookingMetricsOnce = sync.Once{}
	bookingMetrics = nil
}

func (m *BookingMetrics) unregister(registerer prometheus.Registerer) {
	registerer.Unregister(m.reserveAttempts)
	registerer.Unregister(m.reserveDuration)
	registerer.Unregister(m.reserveErrors)
	registerer.Unregister(m.meetingFallbacks)
	registerer.Unregister(m.outboxPublished)
	registerer.Unregister(m.dbLockWait)
}

func newBookingMetrics(registerer prometheus.Registerer, cfg Config) *BookingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fiscoach"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	reserveAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fiscoach_booking_reserve_attempts_total",
		Help:        "Reservation attempts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	reserveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fiscoach_booking_reserve_duration_seconds",
		Help:        "Reservation transaction latency including lock wait.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"outcome"})
	reserveErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fiscoach_booking_reserve_errors_total",
		Help:        "Reservation failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	meetingFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "fiscoach_booking_meeting_fallbacks_total",
		Help:        "Bookings that fell back to a placeholder meeting reference.",
		ConstLabels: constLabels,
	})
	outboxPublished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "fiscoach_notification_outbox_published_total",
		Help:        "Outbox rows handed to the mail provider by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "fiscoach_db_lock_wait_seconds",
		Help:        "DB lock wait time for SELECT FOR UPDATE contention.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(
		reserveAttempts,
		reserveDuration,
		reserveErrors,
		meetingFallbacks,
		outboxPublished,
		dbLockWait,
	)

	lockWaitObserver := map[string]prometheus.Observer{
		LockResourceSlot:          dbLockWait.WithLabelValues(LockResourceSlot),
		LockResourceReservation:   dbLockWait.WithLabelValues(LockResourceReservation),
		LockResourceOutboxForWork: dbLockWait.WithLabelValues(LockResourceOutboxForWork),
	}

	return &BookingMetrics{
		reserveAttempts:  reserveAttempts,
		reserveDuration:  reserveDuration,
		reserveErrors:    reserveErrors,
		meetingFallbacks: meetingFallbacks,
		outboxPublished:  outboxPublished,
		dbLockWait:       dbLockWait,
		lockWaitObserver: lockWaitObserver,
	}
}

// ObserveReserve records one reservation attempt with its outcome and latency.
func (m *BookingMetrics) ObserveReserve(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.reserveAttempts != nil {
		m.reserveAttempts.WithLabelValues(outcome).Inc()
	}
	if m.reserveDuration != nil {
		m.reserveDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// IncReserveError increments the reservation error counter with classification.
func (m *BookingMetrics) IncReserveError(err error) {
	if m == nil || err == nil || m.reserveErrors == nil {
		return
	}
	m.reserveErrors.WithLabelValues(ClassifyReserveReason(err)).Inc()
}

// IncMeetingFallback counts a placeholder meeting reference being issued.
func (m *BookingMetrics) IncMeetingFallback() {
	if m == nil || m.meetingFallbacks == nil {
		return
	}
	m.meetingFallbacks.Inc()
}

// IncOutboxPublished counts an outbox row handed to the mail provider.
func (m *BookingMetrics) IncOutboxPublished(kind string) {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.WithLabelValues(kind).Inc()
}

// ObserveDBLockWait records lock wait time for SELECT FOR UPDATE work.
func (m *BookingMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObserver[resource]; ok {
		observer.Observe(duration.Seconds())
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyReserveReason maps a reservation failure to a low-cardinality reason.
func ClassifyReserveReason(err error) string {
	switch {
	case err == nil:
		return ReserveReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return ReserveReasonDeadlineExceeded
	case IsDBLockTimeout(err):
		return ReserveReasonDBLockTimeout
	case IsSerializationFailure(err):
		return ReserveReasonSerializationFailure
	case IsUniqueViolation(err):
		return ReserveReasonUniqueViolation
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ReserveReasonNotFound
	default:
		return ReserveReasonUnknown
	}
}

// IsDBLockTimeout reports whether err is a lock_timeout expiry (55P03).
func IsDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

// IsSerializationFailure reports whether err is a serialization conflict (40001).
func IsSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

// IsUniqueViolation reports whether err is a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
