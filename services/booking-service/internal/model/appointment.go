package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusBlocked   Status = "blocked"
)

var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusBlocked:   {StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusBlocked:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Occupies reports whether an appointment in this status holds its interval.
// Blocked holds do; only cancellation releases time.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to. Moving to the current status is a no-op.
func Transition(from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

type Appointment struct {
	ID                 string    `json:"id"`
	ProfileID          string    `json:"profile_id"`
	ServiceID          string    `json:"service_id"`
	ClientName         string    `json:"client_name"`
	ClientPhone        string    `json:"client_phone"`
	Date               string    `json:"appointment_date"`
	Time               string    `json:"appointment_time"`
	DurationMinutes    int       `json:"duration_minutes"`
	Status             Status    `json:"status"`
	Notes              string    `json:"notes,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	OwnerNotified      bool      `json:"owner_notified"`
	ReminderSent       bool      `json:"reminder_sent"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StartsAt resolves the appointment's local date and time in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	t := a.Time
	if len(t) > 5 {
		t = t[:5]
	}
	return time.ParseInLocation("2006-01-02 15:04", a.Date+" "+t, loc)
}
