package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, o.(prometheus.Metric).Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func newTestMetrics(t *testing.T) *BookingMetrics {
	t.Helper()
	return newBookingMetrics(prometheus.NewRegistry(), Config{
		ServiceName: "fiscoach-test",
		Environment: "test",
	})
}

func TestObserveReserveCountsByOutcome(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveReserve(ReserveOutcomeConfirmed, 20*time.Millisecond)
	m.ObserveReserve(ReserveOutcomeConfirmed, 35*time.Millisecond)
	m.ObserveReserve(ReserveOutcomeUnavailable, 5*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, m.reserveAttempts.WithLabelValues(ReserveOutcomeConfirmed)))
	assert.Equal(t, 1.0, counterValue(t, m.reserveAttempts.WithLabelValues(ReserveOutcomeUnavailable)))
	assert.Equal(t, uint64(2), histogramCount(t, m.reserveDuration.WithLabelValues(ReserveOutcomeConfirmed)))
}

func TestIncOutboxPublishedByKind(t *testing.T) {
	m := newTestMetrics(t)

	m.IncOutboxPublished("booking.confirmed")
	m.IncOutboxPublished("booking.confirmed")
	m.IncOutboxPublished("booking.cancelled")

	assert.Equal(t, 2.0, counterValue(t, m.outboxPublished.WithLabelValues("booking.confirmed")))
	assert.Equal(t, 1.0, counterValue(t, m.outboxPublished.WithLabelValues("booking.cancelled")))
}

func TestIncMeetingFallback(t *testing.T) {
	m := newTestMetrics(t)
	m.IncMeetingFallback()
	assert.Equal(t, 1.0, counterValue(t, m.meetingFallbacks))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *BookingMetrics
	m.ObserveReserve(ReserveOutcomeConfirmed, time.Millisecond)
	m.IncReserveError(errors.New("boom"))
	m.IncMeetingFallback()
	m.IncOutboxPublished("booking.confirmed")
	m.ObserveDBLockWait(LockResourceSlot, time.Millisecond)
}

func TestClassifyReserveReason(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason string
	}{
		{"nil", nil, ReserveReasonUnknown},
		{"deadline", context.DeadlineExceeded, ReserveReasonDeadlineExceeded},
		{"cancelled", context.Canceled, ReserveReasonDeadlineExceeded},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, ReserveReasonDBLockTimeout},
		{"serialization", &pgconn.PgError{Code: "40001"}, ReserveReasonSerializationFailure},
		{"unique pg", &pgconn.PgError{Code: "23505"}, ReserveReasonUniqueViolation},
		{"unique gorm", gorm.ErrDuplicatedKey, ReserveReasonUniqueViolation},
		{"not found", gorm.ErrRecordNotFound, ReserveReasonNotFound},
		{"other", errors.New("boom"), ReserveReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.reason, ClassifyReserveReason(tc.err))
		})
	}
}

func TestIncReserveErrorUsesClassifiedReason(t *testing.T) {
	m := newTestMetrics(t)

	m.IncReserveError(&pgconn.PgError{Code: "55P03"})
	m.IncReserveError(gorm.ErrDuplicatedKey)
	m.IncReserveError(nil)

	assert.Equal(t, 1.0, counterValue(t, m.reserveErrors.WithLabelValues(ReserveReasonDBLockTimeout)))
	assert.Equal(t, 1.0, counterValue(t, m.reserveErrors.WithLabelValues(ReserveReasonUniqueViolation)))
	assert.Equal(t, 0.0, counterValue(t, m.reserveErrors.WithLabelValues(ReserveReasonUnknown)))
}
