package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/fiscoach/fiscoach/internal/config"
	"github.com/fiscoach/fiscoach/internal/notification/domain"
	obsmetrics "github.com/fiscoach/fiscoach/internal/observability/metrics"
	"github.com/fiscoach/fiscoach/internal/providers/email"
	"github.com/fiscoach/fiscoach/internal/providers/slack"
	"github.com/fiscoach/fiscoach/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker drains the notification outbox. Each tick claims a batch of
// unpublished rows in a short transaction, then sends outside it, so row
// locks are never held across a mail round trip. The claim charges the
// attempt counter; a successful send marks the row published in a follow-up
// update, a failed one records the error and leaves the row for a later
// tick. Rows past the retry ceiling are abandoned with an ops alert.
//
// A crash between claim and send costs one attempt, not the delivery: the
// row stays unpublished and is retried. Replicas take the drain lease
// before a pass, which keeps a sibling from re-claiming charged rows while
// their sends are in flight.
type Worker struct {
	db         *gorm.DB
	log        *zap.Logger
	mailer     email.Provider
	ops        slack.Provider
	opsChannel string
	limiter    *ratelimit.ReserveLimiter
	cfg        config.BookingConfig

	stop chan struct{}
	done chan struct{}
}

type WorkerParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Mailer  email.Provider
	Ops     slack.Provider            `optional:"true"`
	Limiter *ratelimit.ReserveLimiter `optional:"true"`
	Cfg     config.BookingConfig
	App     config.Config
}

func NewWorker(p WorkerParams) *Worker {
	ops := p.Ops
	if ops == nil {
		ops = &slack.NoOpProvider{}
	}
	return &Worker{
		db:         p.DB,
		log:        p.Log.Named("notification.worker"),
		mailer:     p.Mailer,
		ops:        ops,
		opsChannel: p.App.Slack.OpsChannel,
		limiter:    p.Limiter,
		cfg:        p.Cfg,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go w.run()
}

func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.cfg.OutboxInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.cfg.OutboxInterval)
			w.drainTick(ctx)
			cancel()
		}
	}
}

// drainTick runs one leased drain pass. A replica that loses the lease
// race skips the tick; whoever holds it drains.
func (w *Worker) drainTick(ctx context.Context) {
	lease, ok, err := w.limiter.AcquireDrainLease(ctx)
	if err != nil {
		w.log.Warn("drain lease unavailable", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := w.DrainOnce(ctx); err != nil {
		w.log.Warn("outbox drain failed", zap.Error(err))
	}
	if err := w.limiter.ReleaseDrainLease(ctx, lease); err != nil {
		w.log.Warn("drain lease release failed", zap.Error(err))
	}
}

// DrainOnce claims one batch and processes it. Exported so tests can drive
// the worker without the ticker.
func (w *Worker) DrainOnce(ctx context.Context) error {
	claimed, err := w.claimBatch(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := range claimed {
		msg := &claimed[i]
		if err := w.deliver(ctx, msg); err != nil {
			w.log.Warn("notification delivery failed",
				zap.String("outbox_id", msg.ID.String()),
				zap.String("kind", msg.Kind),
				zap.Error(err),
			)
			if err := w.db.WithContext(ctx).Exec(
				`UPDATE notification_outbox SET last_error = ? WHERE id = ?`,
				err.Error(), msg.ID,
			).Error; err != nil {
				return err
			}
			if msg.Attempts >= w.cfg.OutboxMaxTries {
				w.alertAbandoned(ctx, msg)
			}
			continue
		}
		if err := w.db.WithContext(ctx).Exec(
			`UPDATE notification_outbox SET published = true, published_at = ?, last_error = '' WHERE id = ?`,
			now, msg.ID,
		).Error; err != nil {
			return err
		}
		obsmetrics.Booking().IncOutboxPublished(msg.Kind)
	}
	return nil
}

// claimBatch locks a batch of unpublished rows with FOR UPDATE SKIP LOCKED,
// charges each row's attempt, and commits before any mail goes out. The
// charged attempt is the claim: after commit the rows are unlocked, and the
// drain lease keeps sibling replicas from picking them back up while this
// pass sends. The returned messages carry the post-charge attempt count.
func (w *Worker) claimBatch(ctx context.Context) ([]domain.OutboxMessage, error) {
	var claimed []domain.OutboxMessage
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(
			`SELECT id, kind, payload, published, published_at, attempts, last_error, created_at
			 FROM notification_outbox
			 WHERE published = false AND attempts < ?
			 ORDER BY id
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			w.cfg.OutboxMaxTries,
			w.cfg.OutboxBatchSize,
		).Scan(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			msg := &claimed[i]
			if err := tx.Exec(
				`UPDATE notification_outbox SET attempts = attempts + 1 WHERE id = ?`,
				msg.ID,
			).Error; err != nil {
				return err
			}
			msg.Attempts++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// alertAbandoned pings the ops channel when a notification runs out of
// retries. The alert itself is best effort.
func (w *Worker) alertAbandoned(ctx context.Context, msg *domain.OutboxMessage) {
	text := fmt.Sprintf("notification %s (%s) abandoned after %d attempts", msg.ID, msg.Kind, msg.Attempts)
	if err := w.ops.PostMessage(ctx, w.opsChannel, text); err != nil {
		w.log.Warn("ops alert failed", zap.Error(err))
	}
}

func (w *Worker) deliver(ctx context.Context, msg *domain.OutboxMessage) error {
	employeeEmail, _ := msg.Payload["employee_email"].(string)
	coachEmail, _ := msg.Payload["coach_email"].(string)
	windowStart, _ := msg.Payload["window_start"].(string)
	meetingRef, _ := msg.Payload["meeting_ref"].(string)

	var subject, body string
	switch msg.Kind {
	case domain.BookingCancelledKind:
		subject = "Your coaching session was cancelled"
		body = fmt.Sprintf("<p>The session scheduled for %s has been cancelled.</p>", windowStart)
	default:
		subject = "Your coaching session is confirmed"
		body = fmt.Sprintf("<p>Your session starts at %s.</p><p>Join: %s</p>", windowStart, meetingRef)
	}

	recipients := make([]string, 0, 2)
	if employeeEmail != "" {
		recipients = append(recipients, employeeEmail)
	}
	if coachEmail != "" {
		recipients = append(recipients, coachEmail)
	}
	if len(recipients) == 0 {
		return fmt.Errorf("outbox row %s has no recipients", msg.ID)
	}
	return w.mailer.Send(ctx, recipients, subject, body)
}
