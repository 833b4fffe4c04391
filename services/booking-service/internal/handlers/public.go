package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/httpx"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/contact"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/outbox"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/scheduling"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/storage"
)

// PublicHandler serves the client-facing booking link. No authentication.
type PublicHandler struct {
	store    AppointmentStore
	resolver *scheduling.Resolver
	events   EventWriter
	logger   *slog.Logger
	opts     Options
}

func NewPublicHandler(store AppointmentStore, resolver *scheduling.Resolver, events EventWriter, logger *slog.Logger, opts Options) *PublicHandler {
	return &PublicHandler{store: store, resolver: resolver, events: events, logger: logger, opts: opts.withDefaults()}
}

type serviceItem struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

type slotsResponse struct {
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Slots           []string `json:"slots"`
}

type busyDayItem struct {
	availability.DayCapacity
	Bookable bool `json:"bookable"`
}

type bookRequest struct {
	ProfileID   string `json:"profile_id"`
	ServiceID   string `json:"service_id"`
	Date        string `json:"appointment_date"`
	Time        string `json:"appointment_time"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	Notes       string `json:"notes"`
}

type bookResponse struct {
	AppointmentID   string `json:"appointment_id"`
	Status          string `json:"status"`
	Date            string `json:"appointment_date"`
	Time            string `json:"appointment_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *PublicHandler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	profileID := strings.TrimSpace(r.URL.Query().Get("profile_id"))
	if !validID(profileID) {
		http.Error(w, "valid profile_id required", http.StatusBadRequest)
		return
	}
	if _, err := h.resolver.Profile(r.Context(), profileID); err != nil {
		writeLookupError(w, h.logger, err)
		return
	}
	services, err := h.resolver.Services(r.Context(), profileID)
	if err != nil {
		writeLookupError(w, h.logger, err)
		return
	}
	items := make([]serviceItem, 0, len(services))
	for _, s := range services {
		if !s.Bookable() {
			continue
		}
		items = append(items, serviceItem{ID: s.ID, Name: s.Name, DurationMinutes: s.DurationMinutes, PriceCents: s.PriceCents})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	profileID := strings.TrimSpace(q.Get("profile_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	date := strings.TrimSpace(q.Get("date"))
	if !validID(profileID) || !validID(serviceID) || date == "" {
		http.Error(w, "profile_id, service_id, and date are required", http.StatusBadRequest)
		return
	}

	cfg, err := h.resolver.GetAvailabilityConfig(r.Context(), profileID, serviceID, date)
	if err != nil {
		writeLookupError(w, h.logger, err)
		return
	}
	existing, err := h.store.ListRange(r.Context(), profileID, date, date)
	if err != nil {
		h.logger.Error("failed to load appointments", "err", err)
		http.Error(w, "failed to load booked slots", http.StatusInternalServerError)
		return
	}
	slots, err := availability.GenerateSlots(date, cfg.Hours, cfg.DurationMinutes, availability.FromAppointments(existing))
	if err != nil {
		h.logger.Error("slot generation failed", "profile_id", profileID, "date", date, "err", err)
		http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		Date:            date,
		DurationMinutes: cfg.DurationMinutes,
		Slots:           availability.DropPast(date, slots, cfg.Now),
	})
}

func (h *PublicHandler) BusyDays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	profileID := strings.TrimSpace(r.URL.Query().Get("profile_id"))
	if !validID(profileID) {
		http.Error(w, "valid profile_id required", http.StatusBadRequest)
		return
	}
	if _, err := h.resolver.Profile(r.Context(), profileID); err != nil {
		writeLookupError(w, h.logger, err)
		return
	}
	writeBusyDays(w, r, h.store, h.resolver, h.logger, h.opts, profileID)
}

// writeBusyDays is shared by the public calendar and the owner dashboard.
func writeBusyDays(w http.ResponseWriter, r *http.Request, store AppointmentStore, resolver *scheduling.Resolver, logger *slog.Logger, opts Options, profileID string) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	days, err := availability.DaysBetween(from, to)
	if err != nil {
		http.Error(w, "from and to must be YYYY-MM-DD with from <= to", http.StatusBadRequest)
		return
	}
	if days > opts.MaxRangeDays {
		http.Error(w, "date range too large", http.StatusBadRequest)
		return
	}

	week, err := resolver.Week(r.Context(), profileID)
	if err != nil {
		writeLookupError(w, logger, err)
		return
	}
	existing, err := store.ListRange(r.Context(), profileID, from, to)
	if err != nil {
		logger.Error("failed to load appointments", "err", err)
		http.Error(w, "failed to load appointments", http.StatusInternalServerError)
		return
	}
	capacity, err := availability.BusyDays(from, to, week, availability.FromAppointments(existing), opts.CapacityMode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items := make([]busyDayItem, 0, len(capacity))
	for _, d := range capacity {
		items = append(items, busyDayItem{DayCapacity: d, Bookable: d.Bookable()})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// Book creates a pending appointment from the public link. The slot is
// re-checked under a per-day lock inside the inserting transaction.
func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ProfileID = strings.TrimSpace(req.ProfileID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = contact.NormalizeName(req.ClientName)
	if !validID(req.ProfileID) || !validID(req.ServiceID) || req.ClientName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	slot, err := normalizeSlot(req.Date, req.Time)
	if err != nil {
		http.Error(w, "invalid appointment_date or appointment_time", http.StatusBadRequest)
		return
	}
	phone, err := normalizePhone(req.ClientPhone, h.opts.PhoneRegion, true)
	if err != nil {
		http.Error(w, "invalid client_phone", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A finished key answers before anything that depends on the clock or
	// the current configuration.
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	replayed, err := replayIdempotent(ctx, w, h.store, tx, req.ProfileID, idempotencyKey)
	if err != nil {
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	if replayed {
		return
	}

	cfg, err := h.resolver.GetAvailabilityConfig(ctx, req.ProfileID, req.ServiceID, slot.Date)
	if err != nil {
		writeLookupError(w, h.logger, err)
		return
	}
	if len(availability.DropPast(slot.Date, []string{slot.Time}, cfg.Now)) == 0 {
		http.Error(w, errSlotInPast.Error(), http.StatusUnprocessableEntity)
		return
	}

	appt := model.Appointment{
		ProfileID:       req.ProfileID,
		ServiceID:       req.ServiceID,
		ClientName:      req.ClientName,
		ClientPhone:     phone,
		Date:            slot.Date,
		Time:            slot.Time,
		DurationMinutes: cfg.DurationMinutes,
		Status:          model.StatusPending,
		Notes:           strings.TrimSpace(req.Notes),
	}

	if err := reserve(ctx, h.store, tx, appt, cfg.Hours, ""); err != nil {
		if errors.Is(err, errSlotUnavailable) {
			if finalizeIdempotencyError(ctx, h.logger, h.store, tx, appt.ProfileID, idempotencyKey, http.StatusConflict, errSlotUnavailable.Error()) {
				_ = tx.Commit(ctx)
			}
			http.Error(w, errSlotUnavailable.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("slot re-check failed", "err", err)
		http.Error(w, "failed to check availability", http.StatusInternalServerError)
		return
	}

	created, err := h.store.InsertAppointment(ctx, tx, appt)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, errSlotUnavailable.Error(), http.StatusConflict)
			return
		}
		h.logger.Error("failed to create appointment", "err", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	cfg.Profile.ReminderOffsetsMinutes = h.opts.reminderMinutes(ctx, created.ProfileID)
	evt, err := outbox.AppointmentEvent(events.EventAppointmentCreated, created.ID, events.AppointmentCreated{
		Appointment: snapshot(created, cfg.Profile, cfg.Service.Name, events.SourcePublic),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.events.Insert(ctx, tx, evt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	resp := bookResponse{
		AppointmentID:   created.ID,
		Status:          string(created.Status),
		Date:            created.Date,
		Time:            created.Time,
		DurationMinutes: created.DurationMinutes,
	}
	if idempotencyKey != "" {
		body, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, "failed to build response", http.StatusInternalServerError)
			return
		}
		if err := h.store.FinalizeIdempotency(ctx, tx, appt.ProfileID, idempotencyKey, created.ID, http.StatusCreated, body); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, errSlotUnavailable.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.logger.Info("appointment booked", "appointment_id", created.ID, "profile_id", created.ProfileID, "date", created.Date, "time", created.Time)
	httpx.WriteJSON(w, http.StatusCreated, resp)
}
