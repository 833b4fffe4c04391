package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/auth"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/httpx"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/scheduling"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/storage"
)

// OwnerHandler serves the authenticated dashboard. Every route expects
// auth.Verifier.RequireProfile in front of it.
type OwnerHandler struct {
	store    AppointmentStore
	catalog  CatalogStore
	resolver *scheduling.Resolver
	events   EventWriter
	logger   *slog.Logger
	opts     Options
}

func NewOwnerHandler(store AppointmentStore, catalog CatalogStore, resolver *scheduling.Resolver, events EventWriter, logger *slog.Logger, opts Options) *OwnerHandler {
	return &OwnerHandler{store: store, catalog: catalog, resolver: resolver, events: events, logger: logger, opts: opts.withDefaults()}
}

type profileRequest struct {
	Name                   string `json:"name"`
	Timezone               string `json:"timezone"`
	TelegramChatID         int64  `json:"telegram_chat_id"`
	ReminderOffsetsMinutes []int  `json:"reminder_offsets_minutes"`
}

func (h *OwnerHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profileID := auth.ProfileIDFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		p, err := h.catalog.GetOrCreateProfile(r.Context(), profileID)
		if err != nil {
			h.logger.Error("failed to load profile", "err", err)
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var req profileRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Timezone = strings.TrimSpace(req.Timezone)
		if req.Timezone == "" {
			req.Timezone = "UTC"
		}
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			http.Error(w, "unknown timezone", http.StatusBadRequest)
			return
		}
		for _, m := range req.ReminderOffsetsMinutes {
			if m <= 0 || m > 30*24*60 {
				http.Error(w, "reminder offsets must be between 1 minute and 30 days", http.StatusBadRequest)
				return
			}
		}
		p, err := h.catalog.UpdateProfile(r.Context(), model.Profile{
			ID:                     profileID,
			Name:                   req.Name,
			Timezone:               req.Timezone,
			TelegramChatID:         req.TelegramChatID,
			ReminderOffsetsMinutes: req.ReminderOffsetsMinutes,
		})
		if err != nil {
			h.logger.Error("failed to update profile", "err", err)
			http.Error(w, "failed to update profile", http.StatusInternalServerError)
			return
		}
		h.invalidate(r, h.resolver.InvalidateProfile)
		httpx.WriteJSON(w, http.StatusOK, p)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type serviceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	IsActive        *bool  `json:"is_active"`
}

func (req serviceRequest) validate() string {
	if strings.TrimSpace(req.Name) == "" {
		return "name required"
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > 24*60 {
		return "duration_minutes must be between 1 and 1440"
	}
	if req.PriceCents < 0 {
		return "price_cents must be >= 0"
	}
	return ""
}

func (h *OwnerHandler) Services(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)
	switch r.Method {
	case http.MethodGet:
		services, err := h.resolver.Services(ctx, profileID)
		if err != nil {
			writeLookupError(w, h.logger, err)
			return
		}
		if services == nil {
			services = []model.Service{}
		}
		httpx.WriteJSON(w, http.StatusOK, services)
	case http.MethodPost, http.MethodPut:
		var req serviceRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if msg := req.validate(); msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		if _, err := h.catalog.GetOrCreateProfile(ctx, profileID); err != nil {
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		svc := model.Service{
			ProfileID:       profileID,
			Name:            strings.TrimSpace(req.Name),
			DurationMinutes: req.DurationMinutes,
			PriceCents:      req.PriceCents,
			IsActive:        req.IsActive == nil || *req.IsActive,
		}

		status := http.StatusCreated
		var err error
		if r.Method == http.MethodPost {
			svc, err = h.catalog.CreateService(ctx, svc)
		} else {
			svc.ID = strings.TrimSpace(r.URL.Query().Get("id"))
			if !validID(svc.ID) {
				http.Error(w, "valid id required", http.StatusBadRequest)
				return
			}
			status = http.StatusOK
			svc, err = h.catalog.UpdateService(ctx, svc)
		}
		if err != nil {
			if storage.IsNotFound(err) {
				http.Error(w, "service not found", http.StatusNotFound)
				return
			}
			h.logger.Error("failed to save service", "err", err)
			http.Error(w, "failed to save service", http.StatusInternalServerError)
			return
		}
		h.invalidate(r, h.resolver.InvalidateServices)
		httpx.WriteJSON(w, status, svc)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type workingHoursItem struct {
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsWorking bool   `json:"is_working"`
}

// WorkingHours GET returns all seven weekdays. PUT replaces the whole
// schedule; weekdays missing from the body become closed days.
func (h *OwnerHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profileID := auth.ProfileIDFromContext(ctx)
	switch r.Method {
	case http.MethodGet:
		week, err := h.resolver.Week(ctx, profileID)
		if err != nil {
			writeLookupError(w, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, workingHoursItems(week))
	case http.MethodPut:
		var req []workingHoursItem
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		week, msg := parseWeek(req)
		if msg != "" {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		if _, err := h.catalog.GetOrCreateProfile(ctx, profileID); err != nil {
			http.Error(w, "failed to load profile", http.StatusInternalServerError)
			return
		}
		if err := h.catalog.ReplaceWorkingHours(ctx, profileID, week); err != nil {
			h.logger.Error("failed to replace working hours", "err", err)
			http.Error(w, "failed to save working hours", http.StatusInternalServerError)
			return
		}
		h.invalidate(r, h.resolver.InvalidateWorkingHours)
		httpx.WriteJSON(w, http.StatusOK, workingHoursItems(week))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func workingHoursItems(week model.WeekSchedule) []workingHoursItem {
	out := make([]workingHoursItem, 0, len(week))
	for _, h := range week {
		out = append(out, workingHoursItem{
			Weekday:   h.Weekday,
			StartTime: availability.MinutesToTime(h.Start),
			EndTime:   availability.MinutesToTime(h.End),
			IsWorking: h.IsWorking,
		})
	}
	return out
}

func parseWeek(items []workingHoursItem) (model.WeekSchedule, string) {
	seen := map[int]bool{}
	rows := make([]model.WorkingHours, 0, len(items))
	for _, it := range items {
		if it.Weekday < 0 || it.Weekday > 6 {
			return model.WeekSchedule{}, "weekday must be between 0 and 6"
		}
		if seen[it.Weekday] {
			return model.WeekSchedule{}, "duplicate weekday"
		}
		seen[it.Weekday] = true

		row := model.WorkingHours{Weekday: it.Weekday, IsWorking: it.IsWorking}
		if it.StartTime != "" || it.IsWorking {
			start, err := availability.TimeToMinutes(it.StartTime)
			if err != nil {
				return model.WeekSchedule{}, "invalid start_time"
			}
			end, err := availability.TimeToMinutes(it.EndTime)
			if err != nil {
				return model.WeekSchedule{}, "invalid end_time"
			}
			row.Start, row.End = start, end
		}
		if err := row.Validate(); err != nil {
			return model.WeekSchedule{}, "start_time must be before end_time"
		}
		rows = append(rows, row)
	}
	week := model.NewWeekSchedule(rows)
	if err := week.Validate(); err != nil {
		return model.WeekSchedule{}, err.Error()
	}
	return week, ""
}

func (h *OwnerHandler) BusyDays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeBusyDays(w, r, h.store, h.resolver, h.logger, h.opts, auth.ProfileIDFromContext(r.Context()))
}

// invalidate drops a cache entry after a committed write. A failure only
// delays visibility until the TTL expires.
func (h *OwnerHandler) invalidate(r *http.Request, fn func(ctx context.Context, profileID string) error) {
	profileID := auth.ProfileIDFromContext(r.Context())
	if err := fn(r.Context(), profileID); err != nil {
		h.logger.Warn("cache invalidation failed", "profile_id", profileID, "err", err)
	}
}
