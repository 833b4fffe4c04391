package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

// ListWorkingHours returns the stored rows; empty means the profile never saved a schedule.
func (r *Repository) ListWorkingHours(ctx context.Context, profileID string) ([]model.WorkingHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minute, end_minute, is_working
		FROM working_hours
		WHERE profile_id = $1
		ORDER BY weekday ASC
	`, profileID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.WorkingHours, error) {
		var h model.WorkingHours
		err := row.Scan(&h.Weekday, &h.Start, &h.End, &h.IsWorking)
		return h, err
	})
}

// ReplaceWorkingHours swaps the whole weekly schedule in one transaction.
// Every weekday is upserted, so readers never observe a profile without rows.
func (r *Repository) ReplaceWorkingHours(ctx context.Context, profileID string, week model.WeekSchedule) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, h := range week {
			batch.Queue(`
				INSERT INTO working_hours (profile_id, weekday, start_minute, end_minute, is_working)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (profile_id, weekday) DO UPDATE
				SET start_minute = EXCLUDED.start_minute,
					end_minute = EXCLUDED.end_minute,
					is_working = EXCLUDED.is_working,
					updated_at = now()
			`, profileID, h.Weekday, h.Start, h.End, h.IsWorking)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
