package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/scope"
	"gorm.io/datatypes"
)

// SlotState is the lifecycle state of a bookable slot.
type SlotState string

const (
	SlotAvailable SlotState = "available"
	SlotReserved  SlotState = "reserved"
	SlotWithdrawn SlotState = "withdrawn"
)

// Slot is one bookable appointment window published by a coach. Slots are
// platform-level lookup data; the booking protocol is the only writer of the
// available→reserved transition.
type Slot struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	CoachID     snowflake.ID      `gorm:"column:coach_id;not null;index" json:"coach_id"`
	WindowStart time.Time         `gorm:"column:window_start;not null;index" json:"window_start"`
	WindowEnd   time.Time         `gorm:"column:window_end;not null" json:"window_end"`
	State       SlotState         `gorm:"not null;default:'available'" json:"state"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Slot) TableName() string { return "slots" }

func (Slot) ScopePolicy() scope.Policy {
	return scope.Policy{Class: scope.Global}
}

// ReservationStatus is the lifecycle state of a booked reservation.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// Reservation is the booking record created as the terminal step of a
// successful reserve. At most one live (confirmed or completed) reservation
// may reference a slot; the partial unique index on slot_id enforces it.
type Reservation struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	SlotID      snowflake.ID      `gorm:"column:slot_id;not null;index" json:"slot_id"`
	EmployeeID  snowflake.ID      `gorm:"column:employee_id;not null;index" json:"employee_id"`
	CoachID     snowflake.ID      `gorm:"column:coach_id;not null;index" json:"coach_id"`
	Status      ReservationStatus `gorm:"not null;default:'confirmed'" json:"status"`
	MeetingRef  string            `gorm:"column:meeting_ref;type:text" json:"meeting_ref,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	CancelledAt *time.Time        `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Reservation) TableName() string { return "reservations" }

func (Reservation) ScopePolicy() scope.Policy {
	return scope.Policy{Class: scope.Global}
}

type CreateSlotRequest struct {
	WindowStart time.Time
	WindowEnd   time.Time
}

type ListSlotRequest struct {
	CoachID string
	From    time.Time
	To      time.Time
}

type Service interface {
	CreateSlot(ctx context.Context, req CreateSlotRequest) (Slot, error)
	ListSlots(ctx context.Context, req ListSlotRequest) ([]Slot, error)
	Withdraw(ctx context.Context, slotID string) (Slot, error)

	Reserve(ctx context.Context, slotID string) (Reservation, error)
	Cancel(ctx context.Context, reservationID string) (Reservation, error)
	Complete(ctx context.Context, reservationID string) (Reservation, error)
	GetReservation(ctx context.Context, reservationID string) (Reservation, error)
	ListReservations(ctx context.Context) ([]Reservation, error)
}

var (
	ErrInvalidWindow      = errors.New("invalid_window")
	ErrInvalidID          = errors.New("invalid_id")
	ErrSlotNotFound       = errors.New("slot_not_found")
	ErrSlotUnavailable    = errors.New("slot_unavailable")
	ErrReservationTimeout = errors.New("reservation_timeout")
	ErrNotCancellable     = errors.New("not_cancellable")
	ErrNotCompletable     = errors.New("not_completable")
	ErrNotFound           = errors.New("not_found")
	ErrNotSlotOwner       = errors.New("not_slot_owner")
)
