package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fiscoach/fiscoach/internal/notification/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dispatcher enqueues notification jobs into the outbox. Enqueue failures
// are the caller's to log; a committed booking never depends on one.
type Dispatcher interface {
	Enqueue(ctx context.Context, kind string, payload domain.BookingPayload) error
}

type outboxDispatcher struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutboxDispatcher(db *gorm.DB, genID *snowflake.Node) Dispatcher {
	return &outboxDispatcher{db: db, genID: genID}
}

func (d *outboxDispatcher) Enqueue(ctx context.Context, kind string, payload domain.BookingPayload) error {
	now := time.Now().UTC()
	return d.db.WithContext(ctx).Exec(
		`INSERT INTO notification_outbox (id, kind, payload, published, attempts, created_at)
		 VALUES (?, ?, ?, false, 0, ?)`,
		d.genID.Generate(),
		kind,
		datatypes.JSONMap{
			"reservation_id": payload.ReservationID,
			"employee_email": payload.EmployeeEmail,
			"coach_email":    payload.CoachEmail,
			"window_start":   payload.WindowStart.UTC().Format(time.RFC3339),
			"window_end":     payload.WindowEnd.UTC().Format(time.RFC3339),
			"meeting_ref":    payload.MeetingRef,
		},
		now,
	).Error
}
