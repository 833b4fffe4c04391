package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is one delivery attempt, kept for the owner's audit trail.
type Notification struct {
	JobID         int64
	AppointmentID string
	ProfileID     string
	Kind          string
	ChatID        int64
	Status        string
	ProviderID    string
	ErrorReason   string
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	var jobID any
	if n.JobID > 0 {
		jobID = n.JobID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (job_id, appointment_id, profile_id, kind, chat_id, status, provider_id, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, jobID, n.AppointmentID, n.ProfileID, n.Kind, n.ChatID, n.Status, n.ProviderID, n.ErrorReason)
	return err
}
