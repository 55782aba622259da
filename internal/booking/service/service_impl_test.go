package service

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

	"github.com/fiscoach/fiscoach/internal/booking/domain"
	"github.com/fiscoach/fiscoach/internal/clock"
	coachdomain "github.com/fiscoach/fiscoach/internal/coach/domain"
	"github.com/fiscoach/fiscoach/internal/config"
	"github.com/fiscoach/fiscoach/internal/meeting"
	notifdomain "github.com/fiscoach/fiscoach/internal/notification/domain"
	obsmetrics "github.com/fiscoach/fiscoach/internal/observability/metrics"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	userdomain "github.com/fiscoach/fiscoach/internal/user/domain"
)

type stubMeetingProvider struct {
	mu            sync.Mutex
	link          string
	err           error
	calls         int
	coachEmail    string
	employeeEmail string
}

func (p *stubMeetingProvider) AllocateLink(ctx context.Context, coachEmail, employeeEmail string, window meeting.Window) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.coachEmail = coachEmail
	p.employeeEmail = employeeEmail
	return p.link, p.err
}

func (p *stubMeetingProvider) participants() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.coachEmail, p.employeeEmail
}

type recordingDispatcher struct {
	mu       sync.Mutex
	err      error
	enqueued []string
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, kind string, payload notifdomain.BookingPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, kind)
	return nil
}

func (d *recordingDispatcher) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.enqueued...)
}

type bookingFixture struct {
	db         *gorm.DB
	svc        domain.Service
	node       *snowflake.Node
	clock      *clock.FakeClock
	meetings   *stubMeetingProvider
	dispatcher *recordingDispatcher

	coach     coachdomain.Coach
	coachUser userdomain.User
	employee  userdomain.User
	orgID     snowflake.ID
}

func stripForUpdate(d *gorm.DB) {
	sql := d.Statement.SQL.String()
	if strings.Contains(sql, "FOR UPDATE") {
		newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
		newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
		d.Statement.SQL.Reset()
		d.Statement.SQL.WriteString(newSQL)
	}
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	obsmetrics.ResetBookingMetricsForTest()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// SQLite rejects locking clauses; strip them so the raw queries run.
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", stripForUpdate))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", stripForUpdate))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Slot{},
		&domain.Reservation{},
		&coachdomain.Coach{},
		&userdomain.User{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	meetings := &stubMeetingProvider{link: "https://meet.example.com/abc"}
	dispatcher := &recordingDispatcher{}

	svc := New(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: fc,
		Cfg: config.BookingConfig{
			LockTimeout:     2 * time.Second,
			ReserveTimeout:  5 * time.Second,
			OutboxBatchSize: 10,
			OutboxInterval:  time.Second,
			OutboxMaxTries:  3,
		},
		Meetings:   meetings,
		Dispatcher: dispatcher,
	})

	f := &bookingFixture{
		db:         db,
		svc:        svc,
		node:       node,
		clock:      fc,
		meetings:   meetings,
		dispatcher: dispatcher,
		orgID:      node.Generate(),
	}

	f.coachUser = userdomain.User{
		ID:          node.Generate(),
		OrgID:       f.orgID,
		Email:       "coach@fiscoach.local",
		DisplayName: "Coach",
		Role:        tenantctx.RoleCoach,
		TokenHash:   "x",
		IsActive:    true,
	}
	require.NoError(t, db.Create(&f.coachUser).Error)

	f.coach = coachdomain.Coach{
		ID:          node.Generate(),
		UserID:      f.coachUser.ID,
		DisplayName: "Coach",
		Email:       "coach@fiscoach.local",
		IsActive:    true,
	}
	require.NoError(t, db.Create(&f.coach).Error)

	f.employee = userdomain.User{
		ID:          node.Generate(),
		OrgID:       f.orgID,
		Email:       "employee@fiscoach.local",
		DisplayName: "Employee",
		Role:        tenantctx.RoleEmployee,
		TokenHash:   "y",
		IsActive:    true,
	}
	require.NoError(t, db.Create(&f.employee).Error)

	return f
}

func (f *bookingFixture) coachCtx() context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  f.coachUser.ID,
		TenantID: f.orgID,
		Role:     tenantctx.RoleCoach,
	})
}

func (f *bookingFixture) employeeCtx() context.Context {
	return f.employeeCtxFor(f.employee.ID)
}

func (f *bookingFixture) employeeCtxFor(id snowflake.ID) context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  id,
		TenantID: f.orgID,
		Role:     tenantctx.RoleEmployee,
	})
}

func (f *bookingFixture) adminCtx() context.Context {
	return tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID: f.node.Generate(),
		Role:    tenantctx.RoleAdmin,
	})
}

func (f *bookingFixture) createSlot(t *testing.T) domain.Slot {
	t.Helper()
	start := f.clock.Now().Add(24 * time.Hour)
	slot, err := f.svc.CreateSlot(f.coachCtx(), domain.CreateSlotRequest{
		WindowStart: start,
		WindowEnd:   start.Add(time.Hour),
	})
	require.NoError(t, err)
	return slot
}

func TestCreateSlotValidatesWindow(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.CreateSlot(f.coachCtx(), domain.CreateSlotRequest{
		WindowStart: f.clock.Now().Add(time.Hour),
		WindowEnd:   f.clock.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestCreateSlotRequiresCoach(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.CreateSlot(f.employeeCtx(), domain.CreateSlotRequest{
		WindowStart: f.clock.Now().Add(time.Hour),
		WindowEnd:   f.clock.Now().Add(2 * time.Hour),
	})
	assert.ErrorIs(t, err, scope.ErrAccessDenied)

	_, err = f.svc.CreateSlot(context.Background(), domain.CreateSlotRequest{})
	assert.ErrorIs(t, err, scope.ErrContextNotEstablished)
}

func TestReserveConfirmsSlot(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, reservation.Status)
	assert.Equal(t, slot.ID, reservation.SlotID)
	assert.Equal(t, f.employee.ID, reservation.EmployeeID)
	assert.Equal(t, "https://meet.example.com/abc", reservation.MeetingRef)

	var stored domain.Slot
	require.NoError(t, f.db.First(&stored, "id = ?", slot.ID).Error)
	assert.Equal(t, domain.SlotReserved, stored.State)

	assert.Equal(t, []string{notifdomain.BookingConfirmedKind}, f.dispatcher.kinds())
}

// The fixture pins the pool to one connection, so participant lookups made
// while the reserve transaction is open must ride the transaction itself. A
// lookup going back to the pool would starve here and time the reserve out.
func TestReserveResolvesParticipantsInsideTransaction(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	start := time.Now()
	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, "https://meet.example.com/abc", reservation.MeetingRef)
	coachEmail, employeeEmail := f.meetings.participants()
	assert.Equal(t, f.coach.Email, coachEmail)
	assert.Equal(t, f.employee.Email, employeeEmail)
}

func TestReserveRequiresEmployee(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	_, err := f.svc.Reserve(f.coachCtx(), slot.ID.String())
	assert.ErrorIs(t, err, scope.ErrAccessDenied)

	_, err = f.svc.Reserve(context.Background(), slot.ID.String())
	assert.ErrorIs(t, err, scope.ErrContextNotEstablished)
}

func TestReserveUnknownSlot(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.Reserve(f.employeeCtx(), f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrSlotNotFound)

	_, err = f.svc.Reserve(f.employeeCtx(), "not-a-snowflake")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestReserveConcurrentSingleWinner(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	const contenders = 8
	employees := make([]snowflake.ID, contenders)
	for i := range employees {
		u := userdomain.User{
			ID:          f.node.Generate(),
			OrgID:       f.orgID,
			Email:       "emp" + f.node.Generate().String() + "@fiscoach.local",
			DisplayName: "Contender",
			Role:        tenantctx.RoleEmployee,
			TokenHash:   "t",
			IsActive:    true,
		}
		require.NoError(t, f.db.Create(&u).Error)
		employees[i] = u.ID
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Reserve(f.employeeCtxFor(employees[i]), slot.ID.String())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrSlotUnavailable):
		default:
			t.Fatalf("unexpected reserve error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	var count int64
	require.NoError(t, f.db.Model(&domain.Reservation{}).Where("slot_id = ?", slot.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestReserveMeetingProviderFallback(t *testing.T) {
	f := newBookingFixture(t)
	f.meetings.err = errors.New("provider 502")
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reservation.MeetingRef, "placeholder:"), "got %q", reservation.MeetingRef)
}

func TestReserveSurvivesDispatcherFailure(t *testing.T) {
	f := newBookingFixture(t)
	f.dispatcher.err = errors.New("outbox down")
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	var stored domain.Reservation
	require.NoError(t, f.db.First(&stored, "id = ?", reservation.ID).Error)
	assert.Equal(t, domain.ReservationConfirmed, stored.Status)
}

func TestCancelReturnsSlotToAvailable(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(f.employeeCtx(), reservation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var stored domain.Slot
	require.NoError(t, f.db.First(&stored, "id = ?", slot.ID).Error)
	assert.Equal(t, domain.SlotAvailable, stored.State)

	// The slot is bookable again.
	_, err = f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	assert.Contains(t, f.dispatcher.kinds(), notifdomain.BookingCancelledKind)
}

func TestCancelAfterWindowStart(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)

	_, err = f.svc.Cancel(f.employeeCtx(), reservation.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotCancellable)
}

func TestCancelByCoachParty(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(f.coachCtx(), reservation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, cancelled.Status)
}

func TestCancelByStrangerDenied(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	stranger := userdomain.User{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Email:       "stranger@fiscoach.local",
		DisplayName: "Stranger",
		Role:        tenantctx.RoleEmployee,
		TokenHash:   "z",
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(&stranger).Error)

	_, err = f.svc.Cancel(f.employeeCtxFor(stranger.ID), reservation.ID.String())
	assert.ErrorIs(t, err, scope.ErrAccessDenied)
}

func TestCompleteAfterWindowEnd(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	// Before the window ends completion is refused.
	_, err = f.svc.Complete(f.coachCtx(), reservation.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotCompletable)

	f.clock.Advance(26 * time.Hour)

	completed, err := f.svc.Complete(f.coachCtx(), reservation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
}

func TestCompleteOnlyByOwningCoach(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)
	f.clock.Advance(26 * time.Hour)

	_, err = f.svc.Complete(f.employeeCtx(), reservation.ID.String())
	assert.ErrorIs(t, err, scope.ErrAccessDenied)

	otherCoachUser := userdomain.User{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Email:       "other-coach@fiscoach.local",
		DisplayName: "Other",
		Role:        tenantctx.RoleCoach,
		TokenHash:   "w",
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(&otherCoachUser).Error)
	otherCoach := coachdomain.Coach{
		ID:          f.node.Generate(),
		UserID:      otherCoachUser.ID,
		DisplayName: "Other",
		Email:       "other-coach@fiscoach.local",
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(&otherCoach).Error)

	otherCtx := tenantctx.WithContext(context.Background(), tenantctx.Context{
		ActorID:  otherCoachUser.ID,
		TenantID: f.orgID,
		Role:     tenantctx.RoleCoach,
	})
	_, err = f.svc.Complete(otherCtx, reservation.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotCompletable)
}

func TestWithdrawSlot(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	withdrawn, err := f.svc.Withdraw(f.coachCtx(), slot.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.SlotWithdrawn, withdrawn.State)

	_, err = f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestWithdrawReservedSlotRefused(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	_, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	_, err = f.svc.Withdraw(f.coachCtx(), slot.ID.String())
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestGetReservationNonPartyReadsMissing(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	reservation, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	stranger := userdomain.User{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Email:       "curious@fiscoach.local",
		DisplayName: "Curious",
		Role:        tenantctx.RoleEmployee,
		TokenHash:   "q",
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(&stranger).Error)

	_, err = f.svc.GetReservation(f.employeeCtxFor(stranger.ID), reservation.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := f.svc.GetReservation(f.employeeCtx(), reservation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, reservation.ID, got.ID)

	// Admins see everything.
	got, err = f.svc.GetReservation(f.adminCtx(), reservation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, reservation.ID, got.ID)
}

func TestListReservationsScopedByRole(t *testing.T) {
	f := newBookingFixture(t)
	slot := f.createSlot(t)

	_, err := f.svc.Reserve(f.employeeCtx(), slot.ID.String())
	require.NoError(t, err)

	mine, err := f.svc.ListReservations(f.employeeCtx())
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	coachSide, err := f.svc.ListReservations(f.coachCtx())
	require.NoError(t, err)
	assert.Len(t, coachSide, 1)

	stranger := userdomain.User{
		ID:          f.node.Generate(),
		OrgID:       f.orgID,
		Email:       "nobody@fiscoach.local",
		DisplayName: "Nobody",
		Role:        tenantctx.RoleEmployee,
		TokenHash:   "n",
		IsActive:    true,
	}
	require.NoError(t, f.db.Create(&stranger).Error)

	none, err := f.svc.ListReservations(f.employeeCtxFor(stranger.ID))
	require.NoError(t, err)
	assert.Empty(t, none)
}
