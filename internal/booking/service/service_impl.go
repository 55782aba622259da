package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/booking/domain"
	"github.com/fiscoach/fiscoach/internal/clock"
	coachdomain "github.com/fiscoach/fiscoach/internal/coach/domain"
	"github.com/fiscoach/fiscoach/internal/config"
	"github.com/fiscoach/fiscoach/internal/meeting"
	"github.com/fiscoach/fiscoach/internal/notification"
	notifdomain "github.com/fiscoach/fiscoach/internal/notification/domain"
	obsmetrics "github.com/fiscoach/fiscoach/internal/observability/metrics"
	"github.com/fiscoach/fiscoach/internal/scope"
	"github.com/fiscoach/fiscoach/internal/tenantctx"
	userdomain "github.com/fiscoach/fiscoach/internal/user/domain"
	"github.com/fiscoach/fiscoach/pkg/db"
	"github.com/fiscoach/fiscoach/pkg/db/option"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.BookingConfig
	Meetings   meeting.Provider
	Dispatcher notification.Dispatcher
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.BookingConfig
	meetings   meeting.Provider
	dispatcher notification.Dispatcher

	slotStore  *scope.Store[domain.Slot]
	resStore   *scope.Store[domain.Reservation]
	coachStore *scope.Store[coachdomain.Coach]
	userStore  *scope.UnscopedSystemStore[userdomain.User]
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("booking.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg,
		meetings:   p.Meetings,
		dispatcher: p.Dispatcher,
		slotStore:  scope.NewStore[domain.Slot](p.DB),
		resStore:   scope.NewStore[domain.Reservation](p.DB),
		coachStore: scope.NewStore[coachdomain.Coach](p.DB),
		userStore:  scope.UnscopedSystemAccess[userdomain.User](p.DB),
	}
}

// CreateSlot publishes a bookable window for the calling coach.
func (s *Service) CreateSlot(ctx context.Context, req domain.CreateSlotRequest) (domain.Slot, error) {
	coach, err := s.callerCoach(ctx)
	if err != nil {
		return domain.Slot{}, err
	}
	start := req.WindowStart.UTC()
	end := req.WindowEnd.UTC()
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return domain.Slot{}, domain.ErrInvalidWindow
	}

	now := s.clock.Now()
	slot := domain.Slot{
		ID:          s.genID.Generate(),
		CoachID:     coach.ID,
		WindowStart: start,
		WindowEnd:   end,
		State:       domain.SlotAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.slotStore.Create(ctx, &slot); err != nil {
		return domain.Slot{}, err
	}
	return slot, nil
}

func (s *Service) ListSlots(ctx context.Context, req domain.ListSlotRequest) ([]domain.Slot, error) {
	filter := &domain.Slot{}
	if strings.TrimSpace(req.CoachID) != "" {
		coachID, err := snowflake.ParseString(strings.TrimSpace(req.CoachID))
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		filter.CoachID = coachID
	}

	opts := []option.QueryOption{option.WithOrder("window_start asc, id asc")}
	if !req.From.IsZero() {
		opts = append(opts, option.WithWhere("window_start >= ?", req.From.UTC()))
	}
	if !req.To.IsZero() {
		opts = append(opts, option.WithWhere("window_start < ?", req.To.UTC()))
	}

	items, err := s.slotStore.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	slots := make([]domain.Slot, 0, len(items))
	for _, item := range items {
		slots = append(slots, *item)
	}
	return slots, nil
}

// Withdraw removes an unbooked slot. Only the publishing coach may withdraw,
// and only from the available state.
func (s *Service) Withdraw(ctx context.Context, slotID string) (domain.Slot, error) {
	coach, err := s.callerCoach(ctx)
	if err != nil {
		return domain.Slot{}, err
	}
	id, err := parseID(slotID)
	if err != nil {
		return domain.Slot{}, err
	}

	var out domain.Slot
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := s.loadSlotForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if slot == nil {
			return domain.ErrSlotNotFound
		}
		if slot.CoachID != coach.ID {
			return domain.ErrNotSlotOwner
		}
		if slot.State != domain.SlotAvailable {
			return domain.ErrSlotUnavailable
		}
		now := s.clock.Now()
		if err := tx.Exec(
			`UPDATE slots SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
			domain.SlotWithdrawn, now, slot.ID, domain.SlotAvailable,
		).Error; err != nil {
			return err
		}
		slot.State = domain.SlotWithdrawn
		slot.UpdatedAt = now
		out = *slot
		return nil
	}, db.SerializableTxOptions(s.db))
	if err != nil {
		return domain.Slot{}, err
	}
	return out, nil
}

// Reserve books an available slot for the calling employee. The slot row is
// the single serialization point: the transaction takes an exclusive lock on
// it, re-checks state under the lock, inserts the reservation and flips the
// slot in the same transaction. Exactly one concurrent caller wins; the rest
// observe ErrSlotUnavailable once the winner commits.
func (s *Service) Reserve(ctx context.Context, slotID string) (domain.Reservation, error) {
	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return domain.Reservation{}, scope.ErrContextNotEstablished
	}
	if tc.Role != tenantctx.RoleEmployee {
		return domain.Reservation{}, scope.ErrAccessDenied
	}
	id, err := parseID(slotID)
	if err != nil {
		return domain.Reservation{}, err
	}

	bookingMetrics := obsmetrics.Booking()
	start := time.Now()

	reservation, err := s.reserve(ctx, tc, id)
	switch {
	case err == nil:
		bookingMetrics.ObserveReserve(obsmetrics.ReserveOutcomeConfirmed, time.Since(start))
	case errors.Is(err, domain.ErrSlotUnavailable):
		bookingMetrics.ObserveReserve(obsmetrics.ReserveOutcomeUnavailable, time.Since(start))
	case errors.Is(err, domain.ErrSlotNotFound):
		bookingMetrics.ObserveReserve(obsmetrics.ReserveOutcomeNotFound, time.Since(start))
	case errors.Is(err, domain.ErrReservationTimeout):
		bookingMetrics.ObserveReserve(obsmetrics.ReserveOutcomeTimeout, time.Since(start))
	default:
		bookingMetrics.ObserveReserve(obsmetrics.ReserveOutcomeError, time.Since(start))
	}
	if err != nil {
		return domain.Reservation{}, err
	}

	// The booking is durable; a failed enqueue is logged and the response
	// still reports success.
	s.enqueueConfirmation(ctx, reservation)
	return reservation, nil
}

func (s *Service) reserve(ctx context.Context, tc tenantctx.Context, slotID snowflake.ID) (domain.Reservation, error) {
	reserveCtx, cancel := context.WithTimeout(ctx, s.cfg.ReserveTimeout)
	defer cancel()

	var reservation domain.Reservation
	err := s.db.WithContext(reserveCtx).Transaction(func(tx *gorm.DB) error {
		if err := db.SetLocalLockTimeout(tx, s.cfg.LockTimeout); err != nil {
			return err
		}

		slot, err := s.loadSlotForUpdate(reserveCtx, tx, slotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return domain.ErrSlotNotFound
		}
		// State re-check happens under the lock. A check before the lock is
		// granted would be stale by the time it matters.
		if slot.State != domain.SlotAvailable {
			return domain.ErrSlotUnavailable
		}

		meetingRef := s.allocateMeetingRef(reserveCtx, tx, tc, slot)

		now := s.clock.Now()
		reservation = domain.Reservation{
			ID:         s.genID.Generate(),
			SlotID:     slot.ID,
			EmployeeID: tc.ActorID,
			CoachID:    slot.CoachID,
			Status:     domain.ReservationConfirmed,
			MeetingRef: meetingRef,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Exec(
			`INSERT INTO reservations (id, slot_id, employee_id, coach_id, status, meeting_ref, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			reservation.ID, reservation.SlotID, reservation.EmployeeID, reservation.CoachID,
			reservation.Status, reservation.MeetingRef, reservation.CreatedAt, reservation.UpdatedAt,
		).Error; err != nil {
			return err
		}

		result := tx.Exec(
			`UPDATE slots SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
			domain.SlotReserved, now, slot.ID, domain.SlotAvailable,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrSlotUnavailable
		}
		return nil
	}, db.SerializableTxOptions(s.db))
	if err != nil {
		return domain.Reservation{}, s.mapReserveErr(err)
	}
	return reservation, nil
}

// allocateMeetingRef asks the external provider for a join link and falls
// back to a locally generated placeholder when the call fails. The booking
// never depends on the provider's uptime; the failure detail is kept in logs
// and metrics rather than swallowed.
func (s *Service) allocateMeetingRef(ctx context.Context, tx *gorm.DB, tc tenantctx.Context, slot *domain.Slot) string {
	// Lookups here must ride the open transaction's connection. Going back
	// to the pool while the transaction holds a connection starves when the
	// pool is at capacity.
	employeeEmail, coachEmail := s.participantEmails(ctx,
		s.userStore.WithTrx(tx), s.coachStore.WithTrx(tx),
		tc.ActorID, slot.CoachID,
	)
	ref, err := s.meetings.AllocateLink(ctx, coachEmail, employeeEmail, meeting.Window{
		Start: slot.WindowStart,
		End:   slot.WindowEnd,
	})
	if err != nil {
		obsmetrics.Booking().IncMeetingFallback()
		s.log.Warn("meeting link allocation failed, using placeholder",
			zap.String("slot_id", slot.ID.String()),
			zap.Error(err),
		)
		return "placeholder:" + uuid.NewString()
	}
	if ref == "" {
		return "placeholder:" + uuid.NewString()
	}
	return ref
}

func (s *Service) mapReserveErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrSlotNotFound),
		errors.Is(err, domain.ErrSlotUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		db.IsLockTimeoutErr(err),
		db.IsSerializationErr(err):
		obsmetrics.Booking().IncReserveError(err)
		return domain.ErrReservationTimeout
	case db.IsDuplicateKeyErr(err):
		// The partial unique index on live reservations caught a racer that
		// slipped past the row lock. Same outcome as losing the lock race.
		obsmetrics.Booking().IncReserveError(err)
		return domain.ErrSlotUnavailable
	default:
		obsmetrics.Booking().IncReserveError(err)
		return err
	}
}

// Cancel reverts a confirmed reservation whose window has not started.
// Either party may cancel; the slot transactionally returns to available.
func (s *Service) Cancel(ctx context.Context, reservationID string) (domain.Reservation, error) {
	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return domain.Reservation{}, scope.ErrContextNotEstablished
	}
	id, err := parseID(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}

	var out domain.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, slot, err := s.loadReservationForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if reservation == nil {
			return domain.ErrNotFound
		}
		if err := s.authorizeParty(ctx, tc, reservation); err != nil {
			return err
		}
		now := s.clock.Now()
		if reservation.Status != domain.ReservationConfirmed || !now.Before(slot.WindowStart) {
			return domain.ErrNotCancellable
		}

		if err := tx.Exec(
			`UPDATE reservations SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			domain.ReservationCancelled, now, now, reservation.ID, domain.ReservationConfirmed,
		).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			`UPDATE slots SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
			domain.SlotAvailable, now, slot.ID, domain.SlotReserved,
		).Error; err != nil {
			return err
		}
		reservation.Status = domain.ReservationCancelled
		reservation.CancelledAt = &now
		reservation.UpdatedAt = now
		out = *reservation
		return nil
	}, db.SerializableTxOptions(s.db))
	if err != nil {
		return domain.Reservation{}, err
	}

	s.enqueueCancellation(ctx, out)
	return out, nil
}

// Complete marks a confirmed reservation done. Only the owning coach may
// complete, and only once the window has elapsed.
func (s *Service) Complete(ctx context.Context, reservationID string) (domain.Reservation, error) {
	coach, err := s.callerCoach(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}
	id, err := parseID(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}

	var out domain.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, slot, err := s.loadReservationForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if reservation == nil {
			return domain.ErrNotFound
		}
		if reservation.CoachID != coach.ID {
			return domain.ErrNotCompletable
		}
		now := s.clock.Now()
		if reservation.Status != domain.ReservationConfirmed || now.Before(slot.WindowEnd) {
			return domain.ErrNotCompletable
		}

		if err := tx.Exec(
			`UPDATE reservations SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			domain.ReservationCompleted, now, now, reservation.ID, domain.ReservationConfirmed,
		).Error; err != nil {
			return err
		}
		reservation.Status = domain.ReservationCompleted
		reservation.CompletedAt = &now
		reservation.UpdatedAt = now
		out = *reservation
		return nil
	}, db.SerializableTxOptions(s.db))
	if err != nil {
		return domain.Reservation{}, err
	}
	return out, nil
}

func (s *Service) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return domain.Reservation{}, scope.ErrContextNotEstablished
	}
	id, err := parseID(reservationID)
	if err != nil {
		return domain.Reservation{}, err
	}
	reservation, err := s.resStore.FindOne(ctx, &domain.Reservation{ID: id})
	if err != nil {
		return domain.Reservation{}, err
	}
	if reservation == nil {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err := s.authorizeParty(ctx, tc, reservation); err != nil {
		// A reservation the caller is no party to reads as missing.
		return domain.Reservation{}, domain.ErrNotFound
	}
	return *reservation, nil
}

func (s *Service) ListReservations(ctx context.Context) ([]domain.Reservation, error) {
	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, scope.ErrContextNotEstablished
	}

	filter := &domain.Reservation{}
	switch tc.Role {
	case tenantctx.RoleEmployee:
		filter.EmployeeID = tc.ActorID
	case tenantctx.RoleCoach:
		coach, err := s.callerCoach(ctx)
		if err != nil {
			return nil, err
		}
		filter.CoachID = coach.ID
	case tenantctx.RoleAdmin:
	default:
		return nil, scope.ErrAccessDenied
	}

	items, err := s.resStore.Find(ctx, filter, option.WithOrder("created_at desc, id desc"))
	if err != nil {
		return nil, err
	}
	reservations := make([]domain.Reservation, 0, len(items))
	for _, item := range items {
		reservations = append(reservations, *item)
	}
	return reservations, nil
}

func (s *Service) loadSlotForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Slot, error) {
	bookingMetrics := obsmetrics.Booking()
	lockStart := time.Now()
	var slot domain.Slot
	err := tx.WithContext(ctx).Raw(
		`SELECT id, coach_id, window_start, window_end, state, created_at, updated_at
		 FROM slots
		 WHERE id = ?
		 FOR UPDATE`,
		id,
	).Scan(&slot).Error
	bookingMetrics.ObserveDBLockWait(obsmetrics.LockResourceSlot, time.Since(lockStart))
	if err != nil {
		return nil, err
	}
	if slot.ID == 0 {
		return nil, nil
	}
	return &slot, nil
}

func (s *Service) loadReservationForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Reservation, *domain.Slot, error) {
	bookingMetrics := obsmetrics.Booking()
	lockStart := time.Now()
	var reservation domain.Reservation
	err := tx.WithContext(ctx).Raw(
		`SELECT id, slot_id, employee_id, coach_id, status, meeting_ref, created_at, updated_at, cancelled_at, completed_at
		 FROM reservations
		 WHERE id = ?
		 FOR UPDATE`,
		id,
	).Scan(&reservation).Error
	bookingMetrics.ObserveDBLockWait(obsmetrics.LockResourceReservation, time.Since(lockStart))
	if err != nil {
		return nil, nil, err
	}
	if reservation.ID == 0 {
		return nil, nil, nil
	}
	slot, err := s.loadSlotForUpdate(ctx, tx, reservation.SlotID)
	if err != nil {
		return nil, nil, err
	}
	if slot == nil {
		return nil, nil, domain.ErrSlotNotFound
	}
	return &reservation, slot, nil
}

// callerCoach resolves the calling user to their coach record. Admins are
// not coaches; slot ownership operations require the coach role.
func (s *Service) callerCoach(ctx context.Context) (*coachdomain.Coach, error) {
	tc, ok := tenantctx.FromContext(ctx)
	if !ok {
		return nil, scope.ErrContextNotEstablished
	}
	if tc.Role != tenantctx.RoleCoach {
		return nil, scope.ErrAccessDenied
	}
	coach, err := s.coachStore.FindOne(ctx, &coachdomain.Coach{UserID: tc.ActorID})
	if err != nil {
		return nil, err
	}
	if coach == nil {
		return nil, scope.ErrAccessDenied
	}
	return coach, nil
}

func (s *Service) authorizeParty(ctx context.Context, tc tenantctx.Context, reservation *domain.Reservation) error {
	switch tc.Role {
	case tenantctx.RoleAdmin:
		return nil
	case tenantctx.RoleEmployee:
		if reservation.EmployeeID == tc.ActorID {
			return nil
		}
	case tenantctx.RoleCoach:
		coach, err := s.coachStore.FindOne(ctx, &coachdomain.Coach{UserID: tc.ActorID})
		if err != nil {
			return err
		}
		if coach != nil && reservation.CoachID == coach.ID {
			return nil
		}
	}
	return scope.ErrAccessDenied
}

func (s *Service) participantEmails(
	ctx context.Context,
	users *scope.UnscopedSystemStore[userdomain.User],
	coaches *scope.Store[coachdomain.Coach],
	employeeUserID, coachID snowflake.ID,
) (string, string) {
	var employeeEmail, coachEmail string
	if user, err := users.FindOne(ctx, &userdomain.User{ID: employeeUserID}); err == nil && user != nil {
		employeeEmail = user.Email
	}
	if coach, err := coaches.FindOne(ctx, &coachdomain.Coach{ID: coachID}); err == nil && coach != nil {
		coachEmail = coach.Email
	}
	return employeeEmail, coachEmail
}

func (s *Service) enqueueConfirmation(ctx context.Context, reservation domain.Reservation) {
	s.enqueue(ctx, notifdomain.BookingConfirmedKind, reservation)
}

func (s *Service) enqueueCancellation(ctx context.Context, reservation domain.Reservation) {
	s.enqueue(ctx, notifdomain.BookingCancelledKind, reservation)
}

func (s *Service) enqueue(ctx context.Context, kind string, reservation domain.Reservation) {
	enqueueCtx := context.WithoutCancel(ctx)

	slot, err := s.slotStore.FindOne(enqueueCtx, &domain.Slot{ID: reservation.SlotID})
	if err != nil || slot == nil {
		s.log.Warn("notification enqueue skipped, slot lookup failed",
			zap.String("reservation_id", reservation.ID.String()),
			zap.Error(err),
		)
		return
	}
	employeeEmail, coachEmail := s.participantEmails(enqueueCtx, s.userStore, s.coachStore, reservation.EmployeeID, reservation.CoachID)

	err = s.dispatcher.Enqueue(enqueueCtx, kind, notifdomain.BookingPayload{
		ReservationID: reservation.ID.String(),
		EmployeeEmail: employeeEmail,
		CoachEmail:    coachEmail,
		WindowStart:   slot.WindowStart,
		WindowEnd:     slot.WindowEnd,
		MeetingRef:    reservation.MeetingRef,
	})
	if err != nil {
		s.log.Error("notification enqueue failed, booking remains durable",
			zap.String("reservation_id", reservation.ID.String()),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
