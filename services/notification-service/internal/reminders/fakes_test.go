package reminders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/services/notification-service/internal/storage"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

// memoryJobs is an in-memory reminder_jobs table.
type memoryJobs struct {
	nextID int64
	byKey  map[string]*Job
	closed map[string]string
	txs    []*fakeTx
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{byKey: map[string]*Job{}, closed: map[string]string{}}
}

func (m *memoryJobs) MarkClosed(_ context.Context, _ pgx.Tx, appointmentID string, status string) error {
	if _, ok := m.closed[appointmentID]; !ok {
		m.closed[appointmentID] = status
	}
	return nil
}

func (m *memoryJobs) IsClosed(_ context.Context, _ pgx.Tx, appointmentID string) (bool, error) {
	_, ok := m.closed[appointmentID]
	return ok, nil
}

func (m *memoryJobs) Begin(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *memoryJobs) Insert(_ context.Context, _ pgx.Tx, job Job) error {
	if existing, ok := m.byKey[job.IdempotencyKey]; ok {
		if existing.Status == StatusCancelled {
			existing.Status = StatusPending
			existing.RunAt = job.RunAt
			existing.Payload = job.Payload
			existing.Attempts = 0
		}
		return nil
	}
	m.nextID++
	job.ID = m.nextID
	job.Status = StatusPending
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = defaultMaxAttempts
	}
	m.byKey[job.IdempotencyKey] = &job
	return nil
}

func (m *memoryJobs) CancelPending(_ context.Context, _ pgx.Tx, appointmentID string) (int64, error) {
	var n int64
	for _, j := range m.byKey {
		if j.AppointmentID == appointmentID && j.Kind == KindReminder && j.Status == StatusPending {
			j.Status = StatusCancelled
			n++
		}
	}
	return n, nil
}

func (m *memoryJobs) FetchDue(_ context.Context, _ pgx.Tx, limit int) ([]Job, error) {
	var due []Job
	for _, j := range m.all() {
		if j.Status == StatusPending && !j.RunAt.After(time.Now()) && len(due) < limit {
			due = append(due, j)
		}
	}
	return due, nil
}

func (m *memoryJobs) MarkSent(_ context.Context, _ pgx.Tx, id int64) error {
	j := m.byID(id)
	j.Status = StatusSent
	j.Attempts++
	return nil
}

func (m *memoryJobs) MarkFailed(_ context.Context, _ pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, _ string) error {
	j := m.byID(id)
	j.Attempts = attempts
	j.RunAt = nextRunAt
	if attempts >= maxAttempts {
		j.Status = StatusFailed
	}
	return nil
}

func (m *memoryJobs) byID(id int64) *Job {
	for _, j := range m.byKey {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// all returns jobs ordered by run time, then id.
func (m *memoryJobs) all() []Job {
	out := make([]Job, 0, len(m.byKey))
	for _, j := range m.byKey {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].RunAt.Equal(out[k].RunAt) {
			return out[i].RunAt.Before(out[k].RunAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

func (m *memoryJobs) withStatus(status string) []Job {
	var out []Job
	for _, j := range m.all() {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

type memoryLog struct {
	entries []storage.Notification
	// failAt makes the n-th insert (1-based) fail.
	failAt int
}

func (l *memoryLog) Insert(_ context.Context, _ pgx.Tx, n storage.Notification) error {
	if l.failAt > 0 && len(l.entries)+1 == l.failAt {
		return errors.New("notification log unavailable")
	}
	l.entries = append(l.entries, n)
	return nil
}

type fakeSender struct {
	err  error
	sent map[int64][]string
}

func (s *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	if s.err != nil {
		return s.err
	}
	if s.sent == nil {
		s.sent = map[int64][]string{}
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func (s *fakeSender) ProviderID() string { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
