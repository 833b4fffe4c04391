package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/jozofdigital-blip/solo-booking-bot/libs/otel"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/messages"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/storage"
)

type TxStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type JobQueue interface {
	FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error)
	MarkSent(ctx context.Context, tx pgx.Tx, id int64) error
	MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error
}

type NotificationLog interface {
	Insert(ctx context.Context, tx pgx.Tx, n storage.Notification) error
}

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	ProviderID() string
}

type Worker struct {
	db        TxStarter
	queue     JobQueue
	log       NotificationLog
	sender    Sender
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	backoff   time.Duration
	now       func() time.Time
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	// Backoff is multiplied by the attempt number before the next retry.
	Backoff time.Duration
}

func NewWorker(db TxStarter, queue JobQueue, log NotificationLog, sender Sender, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	return &Worker{
		db:        db,
		queue:     queue,
		log:       log,
		sender:    sender,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.Backoff,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("reminder batch failed", "err", err)
			}
		}
	}
}

// processBatch delivers up to batchSize due jobs, each in its own
// transaction, so a storage error on one job never rolls back the
// sent marks of jobs delivered before it.
func (w *Worker) processBatch(ctx context.Context) error {
	for i := 0; i < w.batchSize; i++ {
		done, err := w.processOne(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}

// processOne claims and delivers a single due job. It reports true when
// nothing is due.
func (w *Worker) processOne(ctx context.Context) (bool, error) {
	tx, err := w.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.queue.FetchDue(ctx, tx, 1)
	if err != nil {
		return false, err
	}
	if len(jobs) == 0 {
		return true, nil
	}
	job := jobs[0]
	jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	if err := w.deliver(jobCtx, tx, job); err != nil {
		return false, fmt.Errorf("job %d: %w", job.ID, err)
	}
	return false, tx.Commit(ctx)
}

// deliver sends one job and records the outcome. Only storage errors are returned.
func (w *Worker) deliver(ctx context.Context, tx pgx.Tx, job Job) error {
	now := w.now()
	if job.Kind == KindReminder && !job.Payload.StartsAt.IsZero() && !now.Before(job.Payload.StartsAt) {
		w.logger.Warn("reminder expired before delivery", "job_id", job.ID, "appointment_id", job.AppointmentID)
		return w.queue.MarkFailed(ctx, tx, job.ID, job.MaxAttempts, job.MaxAttempts, now, "appointment already started")
	}

	text, ok := render(job, now)
	if !ok {
		w.logger.Error("unknown job kind", "job_id", job.ID, "kind", job.Kind)
		return w.queue.MarkFailed(ctx, tx, job.ID, job.MaxAttempts, job.MaxAttempts, now, "unknown kind")
	}

	n := storage.Notification{
		JobID:         job.ID,
		AppointmentID: job.AppointmentID,
		ProfileID:     job.ProfileID,
		Kind:          string(job.Kind),
		ChatID:        job.ChatID,
		ProviderID:    w.sender.ProviderID(),
	}
	if err := w.sender.Send(ctx, job.ChatID, text); err != nil {
		attempts := job.Attempts + 1
		w.logger.Error("telegram send failed", "err", err, "job_id", job.ID, "attempt", attempts)
		n.Status, n.ErrorReason = storage.StatusFailed, err.Error()
		if err := w.log.Insert(ctx, tx, n); err != nil {
			return err
		}
		next := now.Add(time.Duration(attempts) * w.backoff)
		return w.queue.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, next, err.Error())
	}

	n.Status = storage.StatusSent
	if err := w.log.Insert(ctx, tx, n); err != nil {
		return err
	}
	w.logger.Info("notification sent", "job_id", job.ID, "kind", job.Kind, "appointment_id", job.AppointmentID)
	return w.queue.MarkSent(ctx, tx, job.ID)
}

func render(job Job, now time.Time) (string, bool) {
	a := job.Payload.Appointment
	switch job.Kind {
	case KindOwnerNewBooking:
		return messages.NewBooking(a), true
	case KindOwnerCancelled:
		return messages.Cancelled(a, job.Payload.Reason), true
	case KindReminder:
		return messages.Reminder(a, a.StartsAt.Sub(now).Round(time.Minute)), true
	default:
		return "", false
	}
}
