package storage

import (
	"context"

	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

var defaultReminderOffsets = []int{1440, 60}

const profileColumns = `id::text, name, timezone, COALESCE(telegram_chat_id, 0), reminder_offsets_minutes, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.ID, &p.Name, &p.Timezone, &p.TelegramChatID, &p.ReminderOffsetsMinutes, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProfile returns pgx.ErrNoRows for unknown profiles; public endpoints never create one.
func (r *Repository) GetProfile(ctx context.Context, profileID string) (model.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = $1
	`, profileID))
}

// GetOrCreateProfile is used on the owner side, where the JWT is the proof the profile exists.
func (r *Repository) GetOrCreateProfile(ctx context.Context, profileID string) (model.Profile, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, profileID)
	if err != nil {
		return model.Profile{}, err
	}
	return r.GetProfile(ctx, profileID)
}

func (r *Repository) UpdateProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	offsets := p.ReminderOffsetsMinutes
	if len(offsets) == 0 {
		offsets = defaultReminderOffsets
	}
	var chatID *int64
	if p.TelegramChatID != 0 {
		chatID = &p.TelegramChatID
	}
	return scanProfile(r.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, name, timezone, telegram_chat_id, reminder_offsets_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			reminder_offsets_minutes = EXCLUDED.reminder_offsets_minutes,
			updated_at = now()
		RETURNING `+profileColumns+`
	`, p.ID, p.Name, p.Timezone, chatID, offsets))
}
