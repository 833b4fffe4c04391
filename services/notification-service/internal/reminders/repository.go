package reminders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/jozofdigital-blip/solo-booking-bot/libs/otel"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores a pending job. A job whose key was cancelled earlier (an
// appointment moved away and back) is revived; any other duplicate is ignored.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err = tx.Exec(ctx, `
		INSERT INTO reminder_jobs (idempotency_key, kind, appointment_id, profile_id, chat_id, run_at, payload, max_attempts, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = 'pending', run_at = EXCLUDED.run_at, payload = EXCLUDED.payload,
		    attempts = 0, last_error = '', updated_at = now()
		WHERE reminder_jobs.status = 'cancelled'
	`, job.IdempotencyKey, string(job.Kind), job.AppointmentID, job.ProfileID, job.ChatID, job.RunAt, payload, maxAttempts, traceparent, tracestate)
	return err
}

// CancelPending cancels the not yet sent reminders of an appointment.
// Owner notices already queued are left alone.
func (r *Repository) CancelPending(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = $1 AND kind = $2 AND status = 'pending'
	`, appointmentID, string(KindReminder))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkClosed records that an appointment reached a terminal status. The first
// terminal status wins.
func (r *Repository) MarkClosed(ctx context.Context, tx pgx.Tx, appointmentID string, status string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO closed_appointments (appointment_id, status)
		VALUES ($1, $2)
		ON CONFLICT (appointment_id) DO NOTHING
	`, appointmentID, status)
	return err
}

func (r *Repository) IsClosed(ctx context.Context, tx pgx.Tx, appointmentID string) (bool, error) {
	var closed bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM closed_appointments WHERE appointment_id = $1)
	`, appointmentID).Scan(&closed)
	return closed, err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, kind, appointment_id, profile_id, chat_id, run_at, payload, status, attempts, max_attempts, traceparent, tracestate
		FROM reminder_jobs
		WHERE status = 'pending' AND run_at <= now()
		ORDER BY run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var kind string
		var raw []byte
		if err := rows.Scan(&j.ID, &j.IdempotencyKey, &kind, &j.AppointmentID, &j.ProfileID, &j.ChatID, &j.RunAt, &raw, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Traceparent, &j.Tracestate); err != nil {
			return nil, err
		}
		j.Kind = Kind(kind)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &j.Payload); err != nil {
				return nil, err
			}
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkSent(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'sent', attempts = attempts + 1, updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed records a failed attempt. The job stays pending until attempts
// reaches maxAttempts.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
