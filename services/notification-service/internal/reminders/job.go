// Package reminders turns booking events into Telegram jobs and delivers them.
package reminders

import (
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
)

type Kind string

const (
	KindReminder        Kind = "reminder"
	KindOwnerNewBooking Kind = "owner_new_booking"
	KindOwnerCancelled  Kind = "owner_cancelled"
)

const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const defaultMaxAttempts = 5

// Payload is the appointment snapshot stored with a job.
type Payload struct {
	events.Appointment
	Reason string `json:"reason,omitempty"`
}

type Job struct {
	ID             int64
	IdempotencyKey string
	Kind           Kind
	AppointmentID  string
	ProfileID      string
	ChatID         int64
	RunAt          time.Time
	Payload        Payload
	Status         string
	Attempts       int
	MaxAttempts    int
	Traceparent    string
	Tracestate     string
}
