package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const BookingConfirmedKind = "booking.confirmed"
const BookingCancelledKind = "booking.cancelled"

// OutboxMessage is one pending notification. Rows are written inside or
// after the transaction that produced the event, claimed by the worker with
// FOR UPDATE SKIP LOCKED, and marked published once handed to the mail
// provider. Delivery is at least once; receivers tolerate duplicates.
type OutboxMessage struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind        string            `gorm:"not null;index:idx_outbox_unpublished" json:"kind"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null" json:"payload"`
	Published   bool              `gorm:"not null;default:false;index:idx_outbox_unpublished" json:"published"`
	PublishedAt *time.Time        `gorm:"column:published_at" json:"published_at,omitempty"`
	Attempts    int               `gorm:"not null;default:0" json:"attempts"`
	LastError   string            `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (OutboxMessage) TableName() string { return "notification_outbox" }

// BookingPayload is the notification body for booking lifecycle events.
type BookingPayload struct {
	ReservationID string    `json:"reservation_id"`
	EmployeeEmail string    `json:"employee_email"`
	CoachEmail    string    `json:"coach_email"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	MeetingRef    string    `json:"meeting_ref"`
}
