package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

const appointmentColumns = `id::text, profile_id::text, service_id::text, client_name, client_phone,
	appointment_date::text, to_char(appointment_time, 'HH24:MI'), duration_minutes, status,
	notes, cancellation_reason, owner_notified, reminder_sent, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.ProfileID,
		&a.ServiceID,
		&a.ClientName,
		&a.ClientPhone,
		&a.Date,
		&a.Time,
		&a.DurationMinutes,
		&a.Status,
		&a.Notes,
		&a.CancellationReason,
		&a.OwnerNotified,
		&a.ReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func collectAppointments(rows pgx.Rows, err error) ([]model.Appointment, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

// LockProfileDay serialises writers for one profile and date until the transaction ends.
func (r *Repository) LockProfileDay(ctx context.Context, tx pgx.Tx, profileID, date string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, profileID, date)
	return err
}

// ListDay reads every appointment on date, cancelled ones included, inside tx.
func (r *Repository) ListDay(ctx context.Context, tx pgx.Tx, profileID, date string) ([]model.Appointment, error) {
	return collectAppointments(tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE profile_id = $1 AND appointment_date = $2::date
		ORDER BY appointment_time ASC
	`, profileID, date))
}

// ListRange lists appointments with from <= date <= to. Cancelled rows are
// returned too; callers filter by status.
func (r *Repository) ListRange(ctx context.Context, profileID, from, to string) ([]model.Appointment, error) {
	return collectAppointments(r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE profile_id = $1 AND appointment_date BETWEEN $2::date AND $3::date
		ORDER BY appointment_date ASC, appointment_time ASC
	`, profileID, from, to))
}

func (r *Repository) InsertAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) (model.Appointment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, profile_id, service_id, client_name, client_phone, appointment_date, appointment_time,
			 duration_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7::time, $8, $9, $10)
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ProfileID, a.ServiceID, a.ClientName, a.ClientPhone, a.Date, a.Time,
		a.DurationMinutes, a.Status, a.Notes))
}

func (r *Repository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, profileID, appointmentID string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND profile_id = $2
		FOR UPDATE
	`, appointmentID, profileID))
}

func (r *Repository) UpdateAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET service_id = $3,
			client_name = $4,
			client_phone = $5,
			appointment_date = $6::date,
			appointment_time = $7::time,
			duration_minutes = $8,
			notes = $9,
			updated_at = now()
		WHERE id = $1 AND profile_id = $2
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ProfileID, a.ServiceID, a.ClientName, a.ClientPhone, a.Date, a.Time, a.DurationMinutes, a.Notes))
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, profileID, appointmentID string, status model.Status, reason string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			cancellation_reason = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancellation_reason END,
			updated_at = now()
		WHERE id = $1 AND profile_id = $2
		RETURNING `+appointmentColumns+`
	`, appointmentID, profileID, string(status), reason))
}
