package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

// reserve is the authoritative re-check. It serialises writers of the same
// profile and day, re-reads that day inside tx and runs CanBook. The
// appointments_no_overlap constraint backs it on insert.
func reserve(ctx context.Context, store AppointmentStore, tx pgx.Tx, a model.Appointment, hours model.WorkingHours, excludeID string) error {
	if err := store.LockProfileDay(ctx, tx, a.ProfileID, a.Date); err != nil {
		return err
	}
	day, err := store.ListDay(ctx, tx, a.ProfileID, a.Date)
	if err != nil {
		return err
	}
	ok, err := availability.CanBook(a.Date, a.Time, a.DurationMinutes, hours, availability.FromAppointments(day), excludeID)
	if err != nil {
		return err
	}
	if !ok {
		return errSlotUnavailable
	}
	return nil
}

// replayIdempotent writes the stored response for a finished key and reports
// whether it did.
func replayIdempotent(ctx context.Context, w http.ResponseWriter, store AppointmentStore, tx pgx.Tx, profileID, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	rec, exists, err := store.LockIdempotencyKey(ctx, tx, profileID, key)
	if err != nil {
		return false, err
	}
	if !exists || rec.StatusCode == 0 {
		return false, nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.StatusCode)
	if len(rec.ResponsePayload) > 0 {
		_, _ = w.Write(rec.ResponsePayload)
		return true, nil
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"appointment_id": rec.AppointmentID})
	return true, nil
}

// finalizeIdempotencyError records a rejected attempt so retries with the
// same key get the same answer. It reports whether the record was written.
func finalizeIdempotencyError(ctx context.Context, logger *slog.Logger, store AppointmentStore, tx pgx.Tx, profileID, key string, statusCode int, msg string) bool {
	if key == "" {
		return false
	}
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := store.FinalizeIdempotency(ctx, tx, profileID, key, "", statusCode, body); err != nil {
		logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}
