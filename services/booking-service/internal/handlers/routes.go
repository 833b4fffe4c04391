package handlers

import (
	"net/http"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/httpx"
)

// Register mounts the public booking link under /api/v1/public behind
// publicLimit and every owner route behind requireProfile.
func Register(mux *http.ServeMux, public *PublicHandler, owner *OwnerHandler, publicLimit, requireProfile httpx.Middleware) {
	if publicLimit == nil {
		publicLimit = func(next http.Handler) http.Handler { return next }
	}
	pub := func(path string, fn http.HandlerFunc) {
		mux.Handle(path, publicLimit(fn))
	}
	pub("/api/v1/public/services", public.Services)
	pub("/api/v1/public/slots", public.Slots)
	pub("/api/v1/public/busy-days", public.BusyDays)
	pub("/api/v1/public/book", public.Book)

	own := func(path string, fn http.HandlerFunc) {
		mux.Handle(path, requireProfile(fn))
	}
	own("/api/v1/profile", owner.Profile)
	own("/api/v1/services", owner.Services)
	own("/api/v1/working-hours", owner.WorkingHours)
	own("/api/v1/appointments", owner.Appointments)
	own("/api/v1/appointments/status", owner.Status)
	own("/api/v1/appointments/block", owner.Block)
	own("/api/v1/calendar/busy-days", owner.BusyDays)
}
