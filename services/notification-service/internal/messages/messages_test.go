package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
)

func sample() events.Appointment {
	return events.Appointment{
		AppointmentID:   "a1",
		ClientName:      "Ivan <script>",
		ClientPhone:     "+79161234567",
		ServiceName:     "Haircut & beard",
		Date:            "2031-03-03",
		Time:            "10:00",
		DurationMinutes: 60,
		Status:          "pending",
	}
}

func TestNewBookingEscapesAndFormats(t *testing.T) {
	got := NewBooking(sample())
	for _, want := range []string{
		"<b>New booking</b>",
		"Client: Ivan &lt;script&gt;",
		"Service: Haircut &amp; beard",
		"When: 03.03.2031 at 10:00 (60 min)",
		"Phone: +79161234567",
		"Confirm it in the dashboard.",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, "<script>") {
		t.Fatal("client name must be escaped")
	}
}

func TestCancelledIncludesReason(t *testing.T) {
	a := sample()
	a.Status = "cancelled"
	got := Cancelled(a, " sick ")
	if !strings.Contains(got, "Reason: sick") || strings.Contains(got, "Confirm") {
		t.Fatalf("unexpected text:\n%s", got)
	}
	if strings.Contains(Cancelled(a, ""), "Reason") {
		t.Fatal("empty reason should be omitted")
	}
}

func TestReminderLead(t *testing.T) {
	if got := Reminder(sample(), 24*time.Hour); !strings.HasPrefix(got, "<b>Reminder</b>: appointment in 1 day") {
		t.Fatalf("unexpected reminder: %s", got)
	}

	cases := map[time.Duration]string{
		30 * time.Second:               "now",
		48 * time.Hour:                 "in 2 days",
		time.Hour:                      "in 1 hour",
		3 * time.Hour:                  "in 3 hours",
		90 * time.Minute:               "in 90 minutes",
		30*time.Minute + 20*time.Second: "in 30 minutes",
	}
	for d, want := range cases {
		if got := Lead(d); got != want {
			t.Fatalf("Lead(%s) = %q, want %q", d, got, want)
		}
	}
}
