package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/auth"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/cache"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/outbox"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/scheduling"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/storage"
)

const (
	testProfile = "11111111-1111-4111-8111-111111111111"
	testService = "22222222-2222-4222-8222-222222222222"
	// 2031-03-03 is a Monday, 2031-03-02 a Sunday.
	testMonday = "2031-03-03"
	testSunday = "2031-03-02"
)

// fakeTx satisfies pgx.Tx for code that only commits and rolls back.
type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

// fakeStore is an in-memory AppointmentStore, CatalogStore and
// scheduling.Catalog.
type fakeStore struct {
	mu           sync.Mutex
	profiles     map[string]model.Profile
	services     map[string]model.Service
	hours        map[string][]model.WorkingHours
	appointments map[string]model.Appointment
	idempotency  map[string]storage.IdempotencyRecord
	dayLocks     []string
	txs          []*fakeTx

	profileLoads  int
	servicesLoads int
	hoursLoads    int
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		profiles:     map[string]model.Profile{},
		services:     map[string]model.Service{},
		hours:        map[string][]model.WorkingHours{},
		appointments: map[string]model.Appointment{},
		idempotency:  map[string]storage.IdempotencyRecord{},
	}
	s.profiles[testProfile] = model.Profile{
		ID:                     testProfile,
		Name:                   "Anna",
		Timezone:               "UTC",
		TelegramChatID:         42,
		ReminderOffsetsMinutes: []int{1440, 60},
	}
	s.services[testService] = model.Service{
		ID:              testService,
		ProfileID:       testProfile,
		Name:            "Haircut",
		DurationMinutes: 60,
		IsActive:        true,
	}
	return s
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	s.mu.Lock()
	s.txs = append(s.txs, tx)
	s.mu.Unlock()
	return tx, nil
}

func (s *fakeStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, profileID, key string) (storage.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := profileID + "/" + key
	if rec, ok := s.idempotency[k]; ok {
		return rec, true, nil
	}
	rec := storage.IdempotencyRecord{ProfileID: profileID, IdempotencyKey: key}
	s.idempotency[k] = rec
	return rec, false, nil
}

func (s *fakeStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, profileID, key, appointmentID string, statusCode int, response []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[profileID+"/"+key] = storage.IdempotencyRecord{
		ProfileID:       profileID,
		IdempotencyKey:  key,
		AppointmentID:   appointmentID,
		StatusCode:      statusCode,
		ResponsePayload: response,
	}
	return nil
}

func (s *fakeStore) LockProfileDay(_ context.Context, _ pgx.Tx, profileID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayLocks = append(s.dayLocks, profileID+"/"+date)
	return nil
}

func (s *fakeStore) ListDay(ctx context.Context, _ pgx.Tx, profileID, date string) ([]model.Appointment, error) {
	return s.ListRange(ctx, profileID, date, date)
}

func (s *fakeStore) ListRange(_ context.Context, profileID, from, to string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.ProfileID == profileID && a.Date >= from && a.Date <= to {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (s *fakeStore) InsertAppointment(_ context.Context, _ pgx.Tx, a model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	s.appointments[a.ID] = a
	return a, nil
}

func (s *fakeStore) GetAppointmentForUpdate(_ context.Context, _ pgx.Tx, profileID, appointmentID string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok || a.ProfileID != profileID {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return a, nil
}

func (s *fakeStore) UpdateAppointment(_ context.Context, _ pgx.Tx, a model.Appointment) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[a.ID]; !ok {
		return model.Appointment{}, pgx.ErrNoRows
	}
	a.UpdatedAt = time.Now().UTC()
	s.appointments[a.ID] = a
	return a, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ pgx.Tx, profileID, appointmentID string, status model.Status, reason string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok || a.ProfileID != profileID {
		return model.Appointment{}, pgx.ErrNoRows
	}
	a.Status = status
	if status == model.StatusCancelled {
		a.CancellationReason = reason
	}
	s.appointments[a.ID] = a
	return a, nil
}

func (s *fakeStore) BlockingService(_ context.Context, _ pgx.Tx, profileID string, durationMinutes int) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.ProfileID == profileID && svc.IsBlocking && svc.DurationMinutes == durationMinutes {
			return svc, nil
		}
	}
	svc := model.Service{
		ID:              uuid.NewString(),
		ProfileID:       profileID,
		Name:            "Blocked time",
		DurationMinutes: durationMinutes,
		IsActive:        true,
		IsBlocking:      true,
	}
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *fakeStore) GetProfile(_ context.Context, profileID string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileLoads++
	p, ok := s.profiles[profileID]
	if !ok {
		return model.Profile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *fakeStore) GetOrCreateProfile(_ context.Context, profileID string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		p = model.Profile{ID: profileID, Timezone: "UTC", ReminderOffsetsMinutes: []int{1440, 60}}
		s.profiles[profileID] = p
	}
	return p, nil
}

func (s *fakeStore) UpdateProfile(_ context.Context, p model.Profile) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(p.ReminderOffsetsMinutes) == 0 {
		p.ReminderOffsetsMinutes = []int{1440, 60}
	}
	s.profiles[p.ID] = p
	return p, nil
}

func (s *fakeStore) ListServices(_ context.Context, profileID string) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servicesLoads++
	var out []model.Service
	for _, svc := range s.services {
		if svc.ProfileID == profileID && !svc.IsBlocking {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) GetService(_ context.Context, profileID, serviceID string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.ProfileID != profileID {
		return model.Service{}, pgx.ErrNoRows
	}
	return svc, nil
}

func (s *fakeStore) CreateService(_ context.Context, svc model.Service) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.ID = uuid.NewString()
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *fakeStore) UpdateService(_ context.Context, svc model.Service) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.services[svc.ID]
	if !ok || cur.ProfileID != svc.ProfileID || cur.IsBlocking {
		return model.Service{}, pgx.ErrNoRows
	}
	s.services[svc.ID] = svc
	return svc, nil
}

func (s *fakeStore) ListWorkingHours(_ context.Context, profileID string) ([]model.WorkingHours, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hoursLoads++
	return append([]model.WorkingHours(nil), s.hours[profileID]...), nil
}

func (s *fakeStore) ReplaceWorkingHours(_ context.Context, profileID string, week model.WeekSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hours[profileID] = week.Rows()
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (f *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

type testEnv struct {
	store  *fakeStore
	events *fakeEvents
	mux    *http.ServeMux
}

func newTestEnv(t *testing.T, opts ...Options) *testEnv {
	t.Helper()
	store := newFakeStore()
	events := &fakeEvents{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := scheduling.NewResolver(store, cache.NewMemory(), time.Minute)
	o := Options{PhoneRegion: "RU"}
	if len(opts) > 0 {
		o = opts[0]
	}

	mux := http.NewServeMux()
	Register(mux,
		NewPublicHandler(store, resolver, events, logger, o),
		NewOwnerHandler(store, store, resolver, events, logger, o),
		nil,
		asProfile,
	)
	return &testEnv{store: store, events: events, mux: mux}
}

// asProfile stands in for auth.Verifier.RequireProfile.
func asProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profileID := r.Header.Get("X-Test-Profile")
		if profileID == "" {
			http.Error(w, "missing profile", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), &auth.Claims{ProfileID: profileID})))
	})
}

func (e *testEnv) do(method, target, body string, header ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) owner(method, target, body string) *httptest.ResponseRecorder {
	return e.do(method, target, body, "X-Test-Profile", testProfile)
}
