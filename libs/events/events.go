// Package events holds the Kafka contracts shared by booking-service (producer)
// and notification-service (consumer). The event type travels in the
// event_type header.
package events

import (
	"strings"
	"time"
)

const (
	EventAppointmentCreated       = "booking.appointment.created.v1"
	EventAppointmentUpdated       = "booking.appointment.updated.v1"
	EventAppointmentStatusChanged = "booking.appointment.status_changed.v1"
)

// TopicAppointments carries every appointment event, keyed by appointment id,
// so consumers see one appointment's events in the order they were written.
const TopicAppointments = "booking.appointments.v1"

// TopicFor returns the topic an event type is published on. Event types
// outside the appointment family keep a topic of their own name.
func TopicFor(eventType string) string {
	if strings.HasPrefix(eventType, "booking.appointment.") {
		return TopicAppointments
	}
	return eventType
}

const (
	SourcePublic = "public"
	SourceOwner  = "owner"
)

// Appointment is the appointment snapshot carried by every booking event.
// StartsAt is the absolute instant resolved in the profile's timezone.
type Appointment struct {
	AppointmentID          string    `json:"appointment_id"`
	ProfileID              string    `json:"profile_id"`
	ServiceID              string    `json:"service_id"`
	ServiceName            string    `json:"service_name"`
	ClientName             string    `json:"client_name"`
	ClientPhone            string    `json:"client_phone"`
	Date                   string    `json:"appointment_date"`
	Time                   string    `json:"appointment_time"`
	DurationMinutes        int       `json:"duration_minutes"`
	Status                 string    `json:"status"`
	Timezone               string    `json:"timezone"`
	StartsAt               time.Time `json:"starts_at"`
	OwnerChatID            int64     `json:"owner_chat_id,omitempty"`
	ReminderOffsetsMinutes []int     `json:"reminder_offsets_minutes,omitempty"`
	Source                 string    `json:"source"`
}

type AppointmentCreated struct {
	Appointment
}

type AppointmentUpdated struct {
	Appointment
	PreviousDate string `json:"previous_date"`
	PreviousTime string `json:"previous_time"`
}

type AppointmentStatusChanged struct {
	Appointment
	PreviousStatus string `json:"previous_status"`
	Reason         string `json:"reason,omitempty"`
}
