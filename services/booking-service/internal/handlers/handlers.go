package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/contact"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/outbox"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/policy"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/scheduling"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/storage"
)

// AppointmentStore is the transactional appointment side of storage.Repository.
type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, profileID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, profileID, key, appointmentID string, statusCode int, response []byte) error
	LockProfileDay(ctx context.Context, tx pgx.Tx, profileID, date string) error
	ListDay(ctx context.Context, tx pgx.Tx, profileID, date string) ([]model.Appointment, error)
	ListRange(ctx context.Context, profileID, from, to string) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, profileID, appointmentID string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, tx pgx.Tx, a model.Appointment) (model.Appointment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, profileID, appointmentID string, status model.Status, reason string) (model.Appointment, error)
	BlockingService(ctx context.Context, tx pgx.Tx, profileID string, durationMinutes int) (model.Service, error)
}

// CatalogStore is the owner-writable configuration side of storage.Repository.
type CatalogStore interface {
	GetOrCreateProfile(ctx context.Context, profileID string) (model.Profile, error)
	UpdateProfile(ctx context.Context, p model.Profile) (model.Profile, error)
	GetService(ctx context.Context, profileID, serviceID string) (model.Service, error)
	CreateService(ctx context.Context, s model.Service) (model.Service, error)
	UpdateService(ctx context.Context, s model.Service) (model.Service, error)
	ReplaceWorkingHours(ctx context.Context, profileID string, week model.WeekSchedule) error
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// Options are shared by the public and owner handlers.
type Options struct {
	CapacityMode availability.CapacityMode
	// PhoneRegion is the default region for client phones without a country prefix.
	PhoneRegion string
	// MaxRangeDays caps busy-day queries.
	MaxRangeDays int
	// Reminders decides the offsets stamped on appointment events.
	Reminders policy.Provider
}

func (o Options) withDefaults() Options {
	if o.CapacityMode == "" {
		o.CapacityMode = availability.CapacityCountAppointments
	}
	if o.MaxRangeDays <= 0 {
		o.MaxRangeDays = 92
	}
	if o.Reminders == nil {
		o.Reminders = policy.NewStaticProvider(policy.Offsets([]int{1440, 60}))
	}
	return o
}

// reminderMinutes resolves the reminder offsets for profileID in whole minutes.
func (o Options) reminderMinutes(ctx context.Context, profileID string) []int {
	offsets, err := o.Reminders.ReminderOffsets(ctx, profileID)
	if err != nil {
		return nil
	}
	out := make([]int, 0, len(offsets))
	for _, d := range offsets {
		out = append(out, int(d/time.Minute))
	}
	return out
}

var (
	errSlotUnavailable = errors.New("slot no longer available")
	errSlotInPast      = errors.New("slot is in the past")
)

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// writeLookupError maps configuration lookups to HTTP statuses.
func writeLookupError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case storage.IsNotFound(err):
		http.Error(w, "profile not found", http.StatusNotFound)
	case errors.Is(err, scheduling.ErrServiceNotFound):
		http.Error(w, "service not found", http.StatusNotFound)
	case errors.Is(err, scheduling.ErrServiceUnavailable):
		http.Error(w, "service is not bookable", http.StatusUnprocessableEntity)
	case errors.Is(err, availability.ErrInvalidRange), errors.Is(err, availability.ErrInvalidTimeFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Error("profile lookup failed", "err", err)
		http.Error(w, "failed to load profile configuration", http.StatusInternalServerError)
	}
}

type slotRequest struct {
	Date string
	Time string
}

// normalizeSlot validates the date and canonicalises the time to HH:MM.
func normalizeSlot(date, at string) (slotRequest, error) {
	date = strings.TrimSpace(date)
	if _, err := availability.ParseDate(date); err != nil {
		return slotRequest{}, availability.ErrInvalidRange
	}
	t, err := availability.NormalizeTime(at)
	if err != nil {
		return slotRequest{}, err
	}
	return slotRequest{Date: date, Time: t}, nil
}

func normalizePhone(raw, region string, required bool) (string, error) {
	if strings.TrimSpace(raw) == "" && !required {
		return "", nil
	}
	return contact.NormalizePhone(raw, region)
}

// snapshot builds the event view of an appointment.
func snapshot(a model.Appointment, profile model.Profile, serviceName, source string) events.Appointment {
	out := events.Appointment{
		AppointmentID:          a.ID,
		ProfileID:              a.ProfileID,
		ServiceID:              a.ServiceID,
		ServiceName:            serviceName,
		ClientName:             a.ClientName,
		ClientPhone:            a.ClientPhone,
		Date:                   a.Date,
		Time:                   a.Time,
		DurationMinutes:        a.DurationMinutes,
		Status:                 string(a.Status),
		Timezone:               profile.Location().String(),
		OwnerChatID:            profile.TelegramChatID,
		ReminderOffsetsMinutes: profile.ReminderOffsetsMinutes,
		Source:                 source,
	}
	if at, err := a.StartsAt(profile.Location()); err == nil {
		out.StartsAt = at.UTC()
	}
	return out
}
