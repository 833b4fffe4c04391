package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/policy"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/scheduling"
)

func slotsURL(date string) string {
	return fmt.Sprintf("/api/v1/public/slots?profile_id=%s&service_id=%s&date=%s", testProfile, testService, date)
}

func bookBody(date, at string) string {
	return fmt.Sprintf(`{"profile_id":%q,"service_id":%q,"appointment_date":%q,"appointment_time":%q,"client_name":"  Ivan   Petrov ","client_phone":"+7 916 123-45-67"}`,
		testProfile, testService, date, at)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return v
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}

func TestPublicSlotsAndBook(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, slotsURL(testMonday), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("slots: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	slots := decode[slotsResponse](t, rec.Body.Bytes())
	if len(slots.Slots) != 15 || slots.Slots[0] != "09:00" || slots.Slots[14] != "16:00" {
		t.Fatalf("unexpected slots: %v", slots.Slots)
	}

	rec = env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "10:00"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("book: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	resp := decode[bookResponse](t, rec.Body.Bytes())
	if resp.Status != string(model.StatusPending) || resp.DurationMinutes != 60 || resp.Time != "10:00" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	stored := env.store.appointments[resp.AppointmentID]
	if stored.ClientPhone != "+79161234567" || stored.ClientName != "Ivan Petrov" {
		t.Fatalf("client fields not normalised: %+v", stored)
	}
	if len(env.store.dayLocks) != 1 || env.store.dayLocks[0] != testProfile+"/"+testMonday {
		t.Fatalf("expected one day lock, got %v", env.store.dayLocks)
	}

	types := env.events.types()
	if len(types) != 1 || types[0] != events.EventAppointmentCreated {
		t.Fatalf("expected one created event, got %v", types)
	}
	evt := decode[events.AppointmentCreated](t, env.events.events[0].Payload)
	if evt.Source != events.SourcePublic || evt.ServiceName != "Haircut" || evt.OwnerChatID != 42 || evt.StartsAt.IsZero() {
		t.Fatalf("unexpected event payload: %+v", evt)
	}
	if len(evt.ReminderOffsetsMinutes) != 2 || evt.ReminderOffsetsMinutes[0] != 1440 {
		t.Fatalf("expected default reminder offsets, got %v", evt.ReminderOffsetsMinutes)
	}

	rec = env.do(http.MethodGet, slotsURL(testMonday), "")
	slots = decode[slotsResponse](t, rec.Body.Bytes())
	for _, taken := range []string{"09:30", "10:00", "10:30"} {
		if contains(slots.Slots, taken) {
			t.Fatalf("slot %s should be taken: %v", taken, slots.Slots)
		}
	}
	if !contains(slots.Slots, "09:00") || !contains(slots.Slots, "11:00") {
		t.Fatalf("adjacent slots should stay free: %v", slots.Slots)
	}

	rec = env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "10:30"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping book: expected 409, got %d", rec.Code)
	}
	if len(env.events.types()) != 1 {
		t.Fatal("rejected booking must not emit an event")
	}
}

func TestPublicBookRejections(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"past slot", bookBody("2020-01-06", "10:00"), http.StatusUnprocessableEntity},
		{"closed day", bookBody(testSunday, "10:00"), http.StatusConflict},
		{"after hours", bookBody(testMonday, "16:30"), http.StatusConflict},
		{"bad time", bookBody(testMonday, "10:7"), http.StatusBadRequest},
		{"bad phone", `{"profile_id":"` + testProfile + `","service_id":"` + testService + `","appointment_date":"` + testMonday + `","appointment_time":"10:00","client_name":"A","client_phone":"12"}`, http.StatusBadRequest},
		{"unknown profile", `{"profile_id":"33333333-3333-4333-8333-333333333333","service_id":"` + testService + `","appointment_date":"` + testMonday + `","appointment_time":"10:00","client_name":"A","client_phone":"+79161234567"}`, http.StatusNotFound},
		{"unknown field", `{"nope":1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/v1/public/book", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body)
			}
		})
	}
	if len(env.store.appointments) != 0 {
		t.Fatalf("no appointment should be stored, got %d", len(env.store.appointments))
	}
}

func TestPublicBookIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "12:00"), "Idempotency-Key", "k1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body)
	}
	again := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "12:00"), "Idempotency-Key", "k1")
	if again.Code != http.StatusCreated || again.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %s vs %s", again.Code, again.Body, first.Body)
	}
	if len(env.store.appointments) != 1 || len(env.events.types()) != 1 {
		t.Fatalf("replay must not insert again: %d appointments", len(env.store.appointments))
	}

	rejected := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "12:30"), "Idempotency-Key", "k2")
	if rejected.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rejected.Code)
	}
	// The slot frees up, but the key keeps its recorded answer.
	for id := range env.store.appointments {
		a := env.store.appointments[id]
		a.Status = model.StatusCancelled
		env.store.appointments[id] = a
	}
	replayed := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "12:30"), "Idempotency-Key", "k2")
	if replayed.Code != http.StatusConflict {
		t.Fatalf("expected recorded 409, got %d", replayed.Code)
	}
}

func TestPublicBookReplayAfterServiceDeactivated(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "12:00"), "Idempotency-Key", "k-retry")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body)
	}
	update := env.owner(http.MethodPut, "/api/v1/services?id="+testService,
		`{"name":"Haircut","duration_minutes":60,"price_cents":0,"is_active":false}`)
	if update.Code != http.StatusOK {
		t.Fatalf("deactivate service: %d %s", update.Code, update.Body)
	}
	if fresh := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "14:00")); fresh.Code == http.StatusCreated {
		t.Fatal("inactive service must not accept new bookings")
	}

	retry := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "12:00"), "Idempotency-Key", "k-retry")
	if retry.Code != http.StatusCreated || retry.Body.String() != first.Body.String() {
		t.Fatalf("retry should replay the stored answer, got %d %s", retry.Code, retry.Body)
	}
	if len(env.store.appointments) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(env.store.appointments))
	}
}

func TestOwnerWorkingHoursReplaceInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(http.MethodGet, slotsURL(testMonday), ""); rec.Code != http.StatusOK {
		t.Fatalf("slots: %d", rec.Code)
	}
	loads := env.store.hoursLoads
	env.do(http.MethodGet, slotsURL(testMonday), "")
	if env.store.hoursLoads != loads {
		t.Fatal("working hours should be served from cache")
	}

	rec := env.owner(http.MethodPut, "/api/v1/working-hours", `[{"weekday":1,"start_time":"10:00","end_time":"12:00","is_working":true}]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put hours: %d %s", rec.Code, rec.Body)
	}
	items := decode[[]workingHoursItem](t, rec.Body.Bytes())
	if len(items) != 7 || !items[1].IsWorking || items[1].StartTime != "10:00" || items[2].IsWorking {
		t.Fatalf("unexpected schedule: %+v", items)
	}

	rec = env.do(http.MethodGet, slotsURL(testMonday), "")
	slots := decode[slotsResponse](t, rec.Body.Bytes())
	if len(slots.Slots) != 3 || slots.Slots[0] != "10:00" || slots.Slots[2] != "11:00" {
		t.Fatalf("expected slots from the new schedule, got %v", slots.Slots)
	}

	bad := []string{
		`[{"weekday":1,"start_time":"10:00","end_time":"12:00","is_working":true},{"weekday":1,"is_working":false}]`,
		`[{"weekday":2,"start_time":"12:00","end_time":"10:00","is_working":true}]`,
		`[{"weekday":7,"is_working":false}]`,
		`[{"weekday":3,"start_time":"9am","end_time":"10:00","is_working":true}]`,
	}
	for _, body := range bad {
		if rec := env.owner(http.MethodPut, "/api/v1/working-hours", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
}

func TestOwnerRoutesRequireProfile(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(http.MethodGet, "/api/v1/profile", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func createOwnerAppointment(t *testing.T, env *testEnv, at string) model.Appointment {
	t.Helper()
	body := fmt.Sprintf(`{"service_id":%q,"appointment_date":%q,"appointment_time":%q,"client_name":"Olga"}`, testService, testMonday, at)
	rec := env.owner(http.MethodPost, "/api/v1/appointments", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	return decode[model.Appointment](t, rec.Body.Bytes())
}

func TestOwnerStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	appt := createOwnerAppointment(t, env, "11:00")
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("owner-created appointments default to confirmed, got %s", appt.Status)
	}

	status := func(to string) int {
		body := fmt.Sprintf(`{"appointment_id":%q,"status":%q,"reason":"client asked"}`, appt.ID, to)
		return env.owner(http.MethodPost, "/api/v1/appointments/status", body).Code
	}
	if code := status("confirmed"); code != http.StatusOK {
		t.Fatalf("same status should be a no-op, got %d", code)
	}
	if code := status("completed"); code != http.StatusOK {
		t.Fatalf("confirmed -> completed: %d", code)
	}
	if code := status("cancelled"); code != http.StatusConflict {
		t.Fatalf("completed -> cancelled must be rejected, got %d", code)
	}
	if code := status("archived"); code != http.StatusBadRequest {
		t.Fatalf("unknown status: %d", code)
	}

	types := env.events.types()
	if len(types) != 2 || types[0] != events.EventAppointmentCreated || types[1] != events.EventAppointmentStatusChanged {
		t.Fatalf("unexpected events: %v", types)
	}
	changed := decode[events.AppointmentStatusChanged](t, env.events.events[1].Payload)
	if changed.PreviousStatus != "confirmed" || changed.Status != "completed" || changed.Source != events.SourceOwner {
		t.Fatalf("unexpected status event: %+v", changed)
	}
}

func TestOwnerCancelFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	appt := createOwnerAppointment(t, env, "14:00")

	body := fmt.Sprintf(`{"appointment_id":%q,"status":"cancelled","reason":"sick"}`, appt.ID)
	rec := env.owner(http.MethodPost, "/api/v1/appointments/status", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	if got := decode[model.Appointment](t, rec.Body.Bytes()); got.CancellationReason != "sick" {
		t.Fatalf("reason not stored: %+v", got)
	}
	if rec := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "14:00")); rec.Code != http.StatusCreated {
		t.Fatalf("cancelled slot should be bookable again, got %d", rec.Code)
	}
}

func TestOwnerBlockTime(t *testing.T) {
	env := newTestEnv(t)

	rec := env.owner(http.MethodPost, "/api/v1/appointments/block", `{"appointment_date":"`+testMonday+`","appointment_time":"13:00","duration_minutes":90,"notes":"lunch"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("block: %d %s", rec.Code, rec.Body)
	}
	blocked := decode[model.Appointment](t, rec.Body.Bytes())
	if blocked.Status != model.StatusBlocked || blocked.ServiceID == "" || blocked.DurationMinutes != 90 {
		t.Fatalf("unexpected block: %+v", blocked)
	}
	if len(env.events.types()) != 0 {
		t.Fatal("blocks must not notify anyone")
	}

	slots := decode[slotsResponse](t, env.do(http.MethodGet, slotsURL(testMonday), "").Body.Bytes())
	if contains(slots.Slots, "13:00") || contains(slots.Slots, "14:00") || !contains(slots.Slots, "14:30") {
		t.Fatalf("block not reflected in slots: %v", slots.Slots)
	}

	rec = env.owner(http.MethodPost, "/api/v1/appointments/block", `{"appointment_date":"`+testMonday+`","appointment_time":"14:00","duration_minutes":30}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("overlapping block: expected 409, got %d", rec.Code)
	}

	// The blocking service stays out of the public catalogue.
	rec = env.do(http.MethodGet, "/api/v1/public/services?profile_id="+testProfile, "")
	services := decode[[]serviceItem](t, rec.Body.Bytes())
	if len(services) != 1 || services[0].ID != testService {
		t.Fatalf("unexpected public services: %+v", services)
	}
}

func TestOwnerRescheduleExcludesItself(t *testing.T) {
	env := newTestEnv(t)
	appt := createOwnerAppointment(t, env, "09:00")
	other := createOwnerAppointment(t, env, "11:00")

	rec := env.owner(http.MethodPut, "/api/v1/appointments?id="+appt.ID, `{"appointment_time":"09:30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move within own slot: %d %s", rec.Code, rec.Body)
	}
	moved := decode[model.Appointment](t, rec.Body.Bytes())
	if moved.Time != "09:30" {
		t.Fatalf("expected 09:30, got %s", moved.Time)
	}

	rec = env.owner(http.MethodPut, "/api/v1/appointments?id="+appt.ID, `{"appointment_time":"10:30"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("moving onto %s: expected 409, got %d", other.Time, rec.Code)
	}

	types := env.events.types()
	if types[len(types)-1] != events.EventAppointmentUpdated {
		t.Fatalf("expected updated event last, got %v", types)
	}
	updated := decode[events.AppointmentUpdated](t, env.events.events[len(types)-1].Payload)
	if updated.PreviousTime != "09:00" || updated.Time != "09:30" {
		t.Fatalf("unexpected updated event: %+v", updated)
	}

	rec = env.owner(http.MethodPut, "/api/v1/appointments?id="+appt.ID, `{"notes":"bring photos"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("notes edit: %d", rec.Code)
	}
	if len(env.events.types()) != len(types) {
		t.Fatal("editing notes must not emit an event")
	}
}

func TestOwnerListAppointments(t *testing.T) {
	env := newTestEnv(t)
	createOwnerAppointment(t, env, "09:00")
	b := createOwnerAppointment(t, env, "12:00")
	env.owner(http.MethodPost, "/api/v1/appointments/status", fmt.Sprintf(`{"appointment_id":%q,"status":"cancelled"}`, b.ID))

	rec := env.owner(http.MethodGet, "/api/v1/appointments?from="+testMonday+"&to="+testMonday, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if all := decode[[]model.Appointment](t, rec.Body.Bytes()); len(all) != 2 || all[0].Time != "09:00" {
		t.Fatalf("unexpected list: %+v", all)
	}

	rec = env.owner(http.MethodGet, "/api/v1/appointments?from="+testMonday+"&to="+testMonday+"&status=cancelled", "")
	if got := decode[[]model.Appointment](t, rec.Body.Bytes()); len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("status filter: %+v", got)
	}

	if rec := env.owner(http.MethodGet, "/api/v1/appointments?from="+testMonday+"&to="+testSunday, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed range: expected 400, got %d", rec.Code)
	}
}

func TestBusyDaysDurationWeighted(t *testing.T) {
	env := newTestEnv(t, Options{PhoneRegion: "RU", CapacityMode: availability.CapacityDurationWeighted})
	for _, at := range []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00"} {
		if rec := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, at)); rec.Code != http.StatusCreated {
			t.Fatalf("book %s: %d", at, rec.Code)
		}
	}

	url := fmt.Sprintf("/api/v1/public/busy-days?profile_id=%s&from=%s&to=2031-03-04", testProfile, testSunday)
	rec := env.do(http.MethodGet, url, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("busy days: %d %s", rec.Code, rec.Body)
	}
	days := decode[[]busyDayItem](t, rec.Body.Bytes())
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if days[0].IsWorking || days[0].Bookable {
		t.Fatalf("sunday must be closed: %+v", days[0])
	}
	if !days[1].Full || days[1].Bookable {
		t.Fatalf("monday must be full: %+v", days[1])
	}
	if days[2].Full || !days[2].Bookable {
		t.Fatalf("tuesday must be open: %+v", days[2])
	}

	owner := env.owner(http.MethodGet, "/api/v1/calendar/busy-days?from="+testSunday+"&to=2031-03-04", "")
	if owner.Body.String() != rec.Body.String() {
		t.Fatalf("owner and public calendars differ:\n%s\n%s", owner.Body, rec.Body)
	}
}

func TestEventsCarryProfileReminderOffsets(t *testing.T) {
	env := newTestEnv(t)
	p := env.store.profiles[testProfile]
	p.ReminderOffsetsMinutes = []int{120, 120, 30}
	env.store.profiles[testProfile] = p
	resolver := scheduling.NewResolver(env.store, nil, time.Minute)
	env.mux = http.NewServeMux()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{PhoneRegion: "RU", Reminders: policy.NewProfileProvider(resolver, nil, logger)}
	Register(env.mux,
		NewPublicHandler(env.store, resolver, env.events, logger, opts),
		NewOwnerHandler(env.store, env.store, resolver, env.events, logger, opts),
		nil, asProfile)

	if rec := env.do(http.MethodPost, "/api/v1/public/book", bookBody(testMonday, "15:00")); rec.Code != http.StatusCreated {
		t.Fatalf("book: %d %s", rec.Code, rec.Body)
	}
	evt := decode[events.AppointmentCreated](t, env.events.events[0].Payload)
	if len(evt.ReminderOffsetsMinutes) != 2 || evt.ReminderOffsetsMinutes[0] != 120 || evt.ReminderOffsetsMinutes[1] != 30 {
		t.Fatalf("expected deduplicated profile offsets, got %v", evt.ReminderOffsetsMinutes)
	}
}
