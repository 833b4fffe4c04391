package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/auth"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/httpx"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/contact"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/outbox"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/storage"
)

type appointmentRequest struct {
	ServiceID   *string       `json:"service_id"`
	Date        *string       `json:"appointment_date"`
	Time        *string       `json:"appointment_time"`
	ClientName  *string       `json:"client_name"`
	ClientPhone *string       `json:"client_phone"`
	Notes       *string       `json:"notes"`
	Status      *model.Status `json:"status"`
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

type blockRequest struct {
	Date            string `json:"appointment_date"`
	Time            string `json:"appointment_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// Appointments lists (GET ?from=&to=), creates (POST) and edits (PUT ?id=).
func (h *OwnerHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r)
	case http.MethodPost:
		h.createAppointment(w, r)
	case http.MethodPut:
		h.editAppointment(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *OwnerHandler) listAppointments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" {
		from = time.Now().UTC().Format("2006-01-02")
	}
	if to == "" {
		if start, err := availability.ParseDate(from); err == nil {
			to = start.AddDate(0, 0, 30).Format("2006-01-02")
		}
	}
	days, err := availability.DaysBetween(from, to)
	if err != nil || days > h.opts.MaxRangeDays {
		http.Error(w, "invalid date range", http.StatusBadRequest)
		return
	}
	var status model.Status
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if status, err = model.ParseStatus(raw); err != nil {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}

	appts, err := h.store.ListRange(ctx, profileID, from, to)
	if err != nil {
		h.logger.Error("failed to list appointments", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *OwnerHandler) createAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)

	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	serviceID := deref(req.ServiceID)
	if !validID(serviceID) {
		http.Error(w, "valid service_id required", http.StatusBadRequest)
		return
	}
	slot, err := normalizeSlot(deref(req.Date), deref(req.Time))
	if err != nil {
		http.Error(w, "invalid appointment_date or appointment_time", http.StatusBadRequest)
		return
	}
	phone, err := normalizePhone(deref(req.ClientPhone), h.opts.PhoneRegion, false)
	if err != nil {
		http.Error(w, "invalid client_phone", http.StatusBadRequest)
		return
	}
	status := model.StatusConfirmed
	if req.Status != nil {
		status = *req.Status
		if status != model.StatusPending && status != model.StatusConfirmed {
			http.Error(w, "status must be pending or confirmed", http.StatusBadRequest)
			return
		}
	}
	if _, err := h.catalog.GetOrCreateProfile(ctx, profileID); err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	cfg, err := h.resolver.GetAvailabilityConfig(ctx, profileID, serviceID, slot.Date)
	if err != nil {
		writeLookupError(w, h.logger, err)
		return
	}

	appt := model.Appointment{
		ProfileID:       profileID,
		ServiceID:       serviceID,
		ClientName:      contact.NormalizeName(deref(req.ClientName)),
		ClientPhone:     phone,
		Date:            slot.Date,
		Time:            slot.Time,
		DurationMinutes: cfg.DurationMinutes,
		Status:          status,
		Notes:           deref(req.Notes),
	}
	h.insert(w, r, appt, cfg.Hours, cfg.Service.Name, true)
}

// insert re-checks and stores a new appointment, optionally announcing it.
func (h *OwnerHandler) insert(w http.ResponseWriter, r *http.Request, appt model.Appointment, hours model.WorkingHours, serviceName string, announce bool) {
	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if appt.Status == model.StatusBlocked {
		svc, err := h.store.BlockingService(ctx, tx, appt.ProfileID, appt.DurationMinutes)
		if err != nil {
			h.logger.Error("failed to resolve blocking service", "err", err)
			http.Error(w, "failed to block time", http.StatusInternalServerError)
			return
		}
		appt.ServiceID = svc.ID
	}

	if err := reserve(ctx, h.store, tx, appt, hours, ""); err != nil {
		h.writeReserveError(w, err)
		return
	}
	created, err := h.store.InsertAppointment(ctx, tx, appt)
	if err != nil {
		h.writeWriteError(w, err, "failed to create appointment")
		return
	}
	if announce {
		if err := h.emit(ctx, tx, events.EventAppointmentCreated, created.ID, func(p model.Profile) any {
			return events.AppointmentCreated{Appointment: snapshot(created, p, serviceName, events.SourceOwner)}
		}); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeWriteError(w, err, "failed to commit")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *OwnerHandler) editAppointment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !validID(id) {
		http.Error(w, "valid id required", http.StatusBadRequest)
		return
	}
	var req appointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Status != nil {
		http.Error(w, "use /api/v1/appointments/status to change status", http.StatusBadRequest)
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := h.store.GetAppointmentForUpdate(ctx, tx, profileID, id)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}

	next := current
	if req.ClientName != nil {
		next.ClientName = contact.NormalizeName(*req.ClientName)
	}
	if req.ClientPhone != nil {
		phone, err := normalizePhone(*req.ClientPhone, h.opts.PhoneRegion, false)
		if err != nil {
			http.Error(w, "invalid client_phone", http.StatusBadRequest)
			return
		}
		next.ClientPhone = phone
	}
	if req.Notes != nil {
		next.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Date != nil || req.Time != nil {
		date, at := current.Date, current.Time
		if req.Date != nil {
			date = *req.Date
		}
		if req.Time != nil {
			at = *req.Time
		}
		slot, err := normalizeSlot(date, at)
		if err != nil {
			http.Error(w, "invalid appointment_date or appointment_time", http.StatusBadRequest)
			return
		}
		next.Date, next.Time = slot.Date, slot.Time
	}

	serviceName := ""
	if sid := deref(req.ServiceID); sid != "" && sid != current.ServiceID {
		if current.Status == model.StatusBlocked {
			http.Error(w, "blocked time has no service", http.StatusBadRequest)
			return
		}
		svc, err := h.resolver.Service(ctx, profileID, sid)
		if err != nil {
			writeLookupError(w, h.logger, err)
			return
		}
		if !svc.Bookable() {
			http.Error(w, "service is not bookable", http.StatusUnprocessableEntity)
			return
		}
		next.ServiceID = svc.ID
		next.DurationMinutes = availability.ResolveDuration(svc.DurationMinutes)
		serviceName = svc.Name
	}

	moved := next.Date != current.Date || next.Time != current.Time || next.ServiceID != current.ServiceID
	if moved {
		if !current.Status.Occupies() || current.Status == model.StatusCompleted {
			http.Error(w, "only active appointments can be rescheduled", http.StatusConflict)
			return
		}
		week, err := h.resolver.Week(ctx, profileID)
		if err != nil {
			writeLookupError(w, h.logger, err)
			return
		}
		day, _ := availability.ParseDate(next.Date)
		if err := reserve(ctx, h.store, tx, next, week.For(day), current.ID); err != nil {
			h.writeReserveError(w, err)
			return
		}
	}

	updated, err := h.store.UpdateAppointment(ctx, tx, next)
	if err != nil {
		h.writeWriteError(w, err, "failed to update appointment")
		return
	}
	if moved && updated.Status != model.StatusBlocked {
		if serviceName == "" {
			if svc, err := h.catalog.GetService(ctx, profileID, updated.ServiceID); err == nil {
				serviceName = svc.Name
			}
		}
		if err := h.emit(ctx, tx, events.EventAppointmentUpdated, updated.ID, func(p model.Profile) any {
			return events.AppointmentUpdated{
				Appointment:  snapshot(updated, p, serviceName, events.SourceOwner),
				PreviousDate: current.Date,
				PreviousTime: current.Time,
			}
		}); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		h.writeWriteError(w, err, "failed to commit")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

// Status applies one status transition. Repeating the current status is a no-op.
func (h *OwnerHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if !validID(req.AppointmentID) {
		http.Error(w, "valid appointment_id required", http.StatusBadRequest)
		return
	}
	to, err := model.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := h.store.GetAppointmentForUpdate(ctx, tx, profileID, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if err := model.Transition(current.Status, to); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if current.Status == to {
		httpx.WriteJSON(w, http.StatusOK, current)
		return
	}

	updated, err := h.store.UpdateStatus(ctx, tx, profileID, current.ID, to, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeWriteError(w, err, "failed to update status")
		return
	}
	if current.Status != model.StatusBlocked {
		serviceName := ""
		if svc, err := h.catalog.GetService(ctx, profileID, updated.ServiceID); err == nil {
			serviceName = svc.Name
		}
		if err := h.emit(ctx, tx, events.EventAppointmentStatusChanged, updated.ID, func(p model.Profile) any {
			return events.AppointmentStatusChanged{
				Appointment:    snapshot(updated, p, serviceName, events.SourceOwner),
				PreviousStatus: string(current.Status),
				Reason:         updated.CancellationReason,
			}
		}); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.logger.Info("appointment status changed", "appointment_id", updated.ID, "from", current.Status, "to", updated.Status)
	httpx.WriteJSON(w, http.StatusOK, updated)
}

// Block reserves time with no client against the synthetic blocking service.
func (h *OwnerHandler) Block(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)

	var req blockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	slot, err := normalizeSlot(req.Date, req.Time)
	if err != nil {
		http.Error(w, "invalid appointment_date or appointment_time", http.StatusBadRequest)
		return
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > 24*60 {
		http.Error(w, "duration_minutes must be between 1 and 1440", http.StatusBadRequest)
		return
	}
	if _, err := h.catalog.GetOrCreateProfile(ctx, profileID); err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}
	week, err := h.resolver.Week(ctx, profileID)
	if err != nil {
		writeLookupError(w, h.logger, err)
		return
	}
	day, _ := availability.ParseDate(slot.Date)

	h.insert(w, r, model.Appointment{
		ProfileID:       profileID,
		Date:            slot.Date,
		Time:            slot.Time,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusBlocked,
		Notes:           strings.TrimSpace(req.Notes),
	}, week.For(day), "", false)
}

func (h *OwnerHandler) emit(ctx context.Context, tx pgx.Tx, eventType, appointmentID string, build func(model.Profile) any) error {
	profile, err := h.resolver.Profile(ctx, auth.ProfileIDFromContext(ctx))
	if err != nil {
		return err
	}
	profile.ReminderOffsetsMinutes = h.opts.reminderMinutes(ctx, profile.ID)
	evt, err := outbox.AppointmentEvent(eventType, appointmentID, build(profile))
	if err != nil {
		return err
	}
	return h.events.Insert(ctx, tx, evt)
}

func (h *OwnerHandler) writeReserveError(w http.ResponseWriter, err error) {
	if errors.Is(err, errSlotUnavailable) {
		http.Error(w, errSlotUnavailable.Error(), http.StatusConflict)
		return
	}
	h.logger.Error("slot re-check failed", "err", err)
	http.Error(w, "failed to check availability", http.StatusInternalServerError)
}

func (h *OwnerHandler) writeWriteError(w http.ResponseWriter, err error, msg string) {
	if storage.IsConflict(err) {
		http.Error(w, errSlotUnavailable.Error(), http.StatusConflict)
		return
	}
	h.logger.Error(msg, "err", err)
	http.Error(w, msg, http.StatusInternalServerError)
}
