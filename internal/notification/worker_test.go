package notification

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/fiscoach/fiscoach/internal/config"
	"github.com/fiscoach/fiscoach/internal/notification/domain"
	obsmetrics "github.com/fiscoach/fiscoach/internal/observability/metrics"
)

type sentMail struct {
	to      []string
	subject string
	body    string
}

type recordingMailer struct {
	mu     sync.Mutex
	err    error
	sends  []sentMail
	onSend func() error
}

func (m *recordingMailer) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onSend != nil {
		if err := m.onSend(); err != nil {
			return err
		}
	}
	if m.err != nil {
		return m.err
	}
	m.sends = append(m.sends, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func (m *recordingMailer) sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sends...)
}

func (m *recordingMailer) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type recordingOps struct {
	mu       sync.Mutex
	messages []string
}

func (o *recordingOps) PostMessage(ctx context.Context, channelID string, message string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, message)
	return nil
}

func (o *recordingOps) posted() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.messages...)
}

type workerFixture struct {
	db         *gorm.DB
	worker     *Worker
	dispatcher Dispatcher
	mailer     *recordingMailer
	ops        *recordingOps
	node       *snowflake.Node
}

func stripLockingClause(d *gorm.DB) {
	sql := d.Statement.SQL.String()
	if strings.Contains(sql, "FOR UPDATE") {
		newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(newSQL)
	}
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()
	obsmetrics.ResetBookingMetricsForTest()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// SQLite rejects locking clauses; strip them so the claim query runs.
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", stripLockingClause))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", stripLockingClause))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.OutboxMessage{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	ops := &recordingOps{}
	worker := NewWorker(WorkerParams{
		DB:     db,
		Log:    zaptest.NewLogger(t),
		Mailer: mailer,
		Ops:    ops,
		Cfg: config.BookingConfig{
			LockTimeout:     2 * time.Second,
			ReserveTimeout:  5 * time.Second,
			OutboxBatchSize: 10,
			OutboxInterval:  time.Second,
			OutboxMaxTries:  3,
		},
	})

	return &workerFixture{
		db:         db,
		worker:     worker,
		dispatcher: NewOutboxDispatcher(db, node),
		mailer:     mailer,
		ops:        ops,
		node:       node,
	}
}

func (f *workerFixture) enqueue(t *testing.T, kind string) {
	t.Helper()
	start := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.dispatcher.Enqueue(context.Background(), kind, domain.BookingPayload{
		ReservationID: f.node.Generate().String(),
		EmployeeEmail: "employee@fiscoach.local",
		CoachEmail:    "coach@fiscoach.local",
		WindowStart:   start,
		WindowEnd:     start.Add(time.Hour),
		MeetingRef:    "https://meet.example.com/abc",
	}))
}

func (f *workerFixture) rows(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	var rows []domain.OutboxMessage
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	return rows
}

func TestDrainPublishesAndSends(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, domain.BookingConfirmedKind)
	f.enqueue(t, domain.BookingCancelledKind)

	require.NoError(t, f.worker.DrainOnce(context.Background()))

	sends := f.mailer.sent()
	require.Len(t, sends, 2)
	assert.Equal(t, []string{"employee@fiscoach.local", "coach@fiscoach.local"}, sends[0].to)
	assert.Contains(t, sends[0].subject, "confirmed")
	assert.Contains(t, sends[0].body, "https://meet.example.com/abc")
	assert.Contains(t, sends[1].subject, "cancelled")

	for _, row := range f.rows(t) {
		assert.True(t, row.Published)
		require.NotNil(t, row.PublishedAt)
		assert.Equal(t, 1, row.Attempts)
		assert.Empty(t, row.LastError)
	}
}

// The claim must commit before the mail goes out. The hook reads the row
// from the pool mid-send; the fixture pins the pool to one connection, so a
// claim transaction still open around the send would starve this read.
func TestDrainCommitsClaimBeforeSending(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, domain.BookingConfirmedKind)

	f.mailer.onSend = func() error {
		var row domain.OutboxMessage
		if err := f.db.First(&row).Error; err != nil {
			return err
		}
		assert.Equal(t, 1, row.Attempts)
		assert.False(t, row.Published)
		return nil
	}

	require.NoError(t, f.worker.DrainOnce(context.Background()))

	require.Len(t, f.mailer.sent(), 1)
	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Published)
	assert.Equal(t, 1, rows[0].Attempts)
}

func TestDrainFailureBumpsAttemptsAndRetries(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, domain.BookingConfirmedKind)

	f.mailer.fail(errors.New("smtp: connection refused"))
	require.NoError(t, f.worker.DrainOnce(context.Background()))

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Published)
	assert.Nil(t, rows[0].PublishedAt)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Contains(t, rows[0].LastError, "connection refused")

	// The next tick picks the row back up once the provider recovers.
	f.mailer.fail(nil)
	require.NoError(t, f.worker.DrainOnce(context.Background()))

	rows = f.rows(t)
	assert.True(t, rows[0].Published)
	assert.Equal(t, 2, rows[0].Attempts)
	assert.Len(t, f.mailer.sent(), 1)
}

func TestDrainAbandonsRowsPastRetryCeiling(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, domain.BookingConfirmedKind)

	f.mailer.fail(errors.New("smtp: mailbox full"))
	for i := 0; i < 3; i++ {
		require.NoError(t, f.worker.DrainOnce(context.Background()))
	}

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Attempts)

	// The third failure crosses the ceiling and pings ops, once.
	posted := f.ops.posted()
	require.Len(t, posted, 1)
	assert.Contains(t, posted[0], "abandoned after 3 attempts")

	// At the ceiling the row is no longer claimed, even after recovery.
	f.mailer.fail(nil)
	require.NoError(t, f.worker.DrainOnce(context.Background()))

	rows = f.rows(t)
	assert.False(t, rows[0].Published)
	assert.Equal(t, 3, rows[0].Attempts)
	assert.Empty(t, f.mailer.sent())
}

func TestDrainRowWithoutRecipientsFails(t *testing.T) {
	f := newWorkerFixture(t)
	require.NoError(t, f.dispatcher.Enqueue(context.Background(), domain.BookingConfirmedKind, domain.BookingPayload{
		ReservationID: f.node.Generate().String(),
		WindowStart:   time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		WindowEnd:     time.Date(2026, 3, 3, 11, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, f.worker.DrainOnce(context.Background()))

	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Published)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Contains(t, rows[0].LastError, "no recipients")
	assert.Empty(t, f.mailer.sent())
}

// Without a limiter there is no redis to lease from; a single replica
// always gets the tick.
func TestDrainTickWithoutLimiterStillDrains(t *testing.T) {
	f := newWorkerFixture(t)
	f.enqueue(t, domain.BookingConfirmedKind)

	f.worker.drainTick(context.Background())

	assert.Len(t, f.mailer.sent(), 1)
	rows := f.rows(t)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Published)
}

func TestDrainOnEmptyOutboxIsNoOp(t *testing.T) {
	f := newWorkerFixture(t)
	require.NoError(t, f.worker.DrainOnce(context.Background()))
	assert.Empty(t, f.mailer.sent())
}
