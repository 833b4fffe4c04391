package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

const serviceColumns = `id::text, profile_id::text, name, duration_minutes, price_cents, is_active, is_blocking, created_at`

func scanService(row interface{ Scan(...any) error }) (model.Service, error) {
	var s model.Service
	err := row.Scan(&s.ID, &s.ProfileID, &s.Name, &s.DurationMinutes, &s.PriceCents, &s.IsActive, &s.IsBlocking, &s.CreatedAt)
	return s, err
}

// ListServices returns the profile's real services. Synthetic blocking services are never listed.
func (r *Repository) ListServices(ctx context.Context, profileID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE profile_id = $1 AND NOT is_blocking
		ORDER BY created_at ASC
	`, profileID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Service, error) {
		return scanService(row)
	})
}

func (r *Repository) GetService(ctx context.Context, profileID, serviceID string) (model.Service, error) {
	return scanService(r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE profile_id = $1 AND id = $2
	`, profileID, serviceID))
}

func (r *Repository) CreateService(ctx context.Context, s model.Service) (model.Service, error) {
	s.ID = uuid.NewString()
	return scanService(r.pool.QueryRow(ctx, `
		INSERT INTO services (id, profile_id, name, duration_minutes, price_cents, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+serviceColumns+`
	`, s.ID, s.ProfileID, s.Name, s.DurationMinutes, s.PriceCents, s.IsActive))
}

func (r *Repository) UpdateService(ctx context.Context, s model.Service) (model.Service, error) {
	return scanService(r.pool.QueryRow(ctx, `
		UPDATE services
		SET name = $3, duration_minutes = $4, price_cents = $5, is_active = $6
		WHERE profile_id = $1 AND id = $2 AND NOT is_blocking
		RETURNING `+serviceColumns+`
	`, s.ProfileID, s.ID, s.Name, s.DurationMinutes, s.PriceCents, s.IsActive))
}

// BlockingService returns the synthetic inactive service used for owner holds
// of the given length, creating it on first use.
func (r *Repository) BlockingService(ctx context.Context, tx pgx.Tx, profileID string, durationMinutes int) (model.Service, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO services (id, profile_id, name, duration_minutes, price_cents, is_active, is_blocking)
		VALUES ($1, $2, $3, $4, 0, false, true)
		ON CONFLICT (profile_id, duration_minutes) WHERE is_blocking DO NOTHING
	`, uuid.NewString(), profileID, fmt.Sprintf("Blocked time (%d min)", durationMinutes), durationMinutes)
	if err != nil {
		return model.Service{}, err
	}
	return scanService(tx.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE profile_id = $1 AND duration_minutes = $2 AND is_blocking
	`, profileID, durationMinutes))
}
