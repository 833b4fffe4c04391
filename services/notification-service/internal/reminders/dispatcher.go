package reminders

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
	"github.com/jozofdigital-blip/solo-booking-bot/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// Store is the job side of Repository used while handling events.
type Store interface {
	Insert(ctx context.Context, tx pgx.Tx, job Job) error
	CancelPending(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error)
	MarkClosed(ctx context.Context, tx pgx.Tx, appointmentID string, status string) error
	IsClosed(ctx context.Context, tx pgx.Tx, appointmentID string) (bool, error)
}

// Dispatcher schedules jobs for booking events. It runs inside the
// consumer's inbox transaction.
type Dispatcher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(store Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger, now: time.Now}
}

// Topics lists the topics carrying the events the dispatcher understands.
func Topics() []string {
	return []string{events.TopicAppointments}
}

func (d *Dispatcher) Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	switch meta.EventType {
	case events.EventAppointmentCreated:
		var evt events.AppointmentCreated
		if !d.decode(msg, &evt) || !valid(evt.Appointment) {
			return nil
		}
		return d.created(ctx, tx, meta.EventID, evt)
	case events.EventAppointmentUpdated:
		var evt events.AppointmentUpdated
		if !d.decode(msg, &evt) || !valid(evt.Appointment) {
			return nil
		}
		return d.reschedule(ctx, tx, evt.Appointment)
	case events.EventAppointmentStatusChanged:
		var evt events.AppointmentStatusChanged
		if !d.decode(msg, &evt) || !valid(evt.Appointment) {
			return nil
		}
		return d.statusChanged(ctx, tx, meta.EventID, evt)
	default:
		d.logger.Warn("unsupported event ignored", "event_type", meta.EventType, "topic", msg.Topic)
		return nil
	}
}

func (d *Dispatcher) decode(msg kafka.Message, dst any) bool {
	if err := json.Unmarshal(msg.Value, dst); err != nil {
		d.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return false
	}
	return true
}

func valid(a events.Appointment) bool {
	return a.AppointmentID != "" && a.ProfileID != ""
}

// Cancelled and completed are terminal, so an appointment marked closed never
// gets jobs again, whatever order its events arrive in.
func (d *Dispatcher) created(ctx context.Context, tx pgx.Tx, eventID string, evt events.AppointmentCreated) error {
	closed, err := d.store.IsClosed(ctx, tx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if closed {
		d.logger.Info("created event for closed appointment ignored", "appointment_id", evt.AppointmentID)
		return nil
	}
	now := d.now()
	if evt.Source == events.SourcePublic {
		if job, ok := OwnerNotice(KindOwnerNewBooking, eventID, evt.Appointment, "", now); ok {
			if err := d.store.Insert(ctx, tx, job); err != nil {
				return err
			}
		}
	}
	return d.insertAll(ctx, tx, PlanReminders(evt.Appointment, now))
}

// reschedule drops pending reminders and plans them again for the new time.
func (d *Dispatcher) reschedule(ctx context.Context, tx pgx.Tx, a events.Appointment) error {
	if _, err := d.store.CancelPending(ctx, tx, a.AppointmentID); err != nil {
		return err
	}
	closed, err := d.store.IsClosed(ctx, tx, a.AppointmentID)
	if err != nil || closed {
		return err
	}
	return d.insertAll(ctx, tx, PlanReminders(a, d.now()))
}

func (d *Dispatcher) statusChanged(ctx context.Context, tx pgx.Tx, eventID string, evt events.AppointmentStatusChanged) error {
	switch evt.Status {
	case "cancelled":
		if err := d.closeAppointment(ctx, tx, evt.AppointmentID, evt.Status); err != nil {
			return err
		}
		if job, ok := OwnerNotice(KindOwnerCancelled, eventID, evt.Appointment, evt.Reason, d.now()); ok {
			return d.store.Insert(ctx, tx, job)
		}
		return nil
	case "completed":
		return d.closeAppointment(ctx, tx, evt.AppointmentID, evt.Status)
	default:
		return nil
	}
}

func (d *Dispatcher) closeAppointment(ctx context.Context, tx pgx.Tx, appointmentID, status string) error {
	if err := d.store.MarkClosed(ctx, tx, appointmentID, status); err != nil {
		return err
	}
	_, err := d.store.CancelPending(ctx, tx, appointmentID)
	return err
}

func (d *Dispatcher) insertAll(ctx context.Context, tx pgx.Tx, jobs []Job) error {
	for _, job := range jobs {
		if err := d.store.Insert(ctx, tx, job); err != nil {
			return err
		}
	}
	return nil
}
