// Package messages renders the Telegram texts sent to the profile owner.
// Output uses Telegram's HTML parse mode; every user-supplied field is escaped.
package messages

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
)

const displayDate = "02.01.2006"

func NewBooking(a events.Appointment) string {
	var b strings.Builder
	b.WriteString("<b>New booking</b>\n\n")
	writeDetails(&b, a)
	if a.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", html.EscapeString(a.ClientPhone))
	}
	if a.Status == "pending" {
		b.WriteString("\nConfirm it in the dashboard.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func Cancelled(a events.Appointment, reason string) string {
	var b strings.Builder
	b.WriteString("<b>Appointment cancelled</b>\n\n")
	writeDetails(&b, a)
	if reason = strings.TrimSpace(reason); reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", html.EscapeString(reason))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Reminder announces an appointment that starts lead from now.
func Reminder(a events.Appointment, lead time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Reminder</b>: appointment %s\n\n", Lead(lead))
	writeDetails(&b, a)
	if a.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", html.EscapeString(a.ClientPhone))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeDetails(b *strings.Builder, a events.Appointment) {
	if a.ClientName != "" {
		fmt.Fprintf(b, "Client: %s\n", html.EscapeString(a.ClientName))
	}
	if a.ServiceName != "" {
		fmt.Fprintf(b, "Service: %s\n", html.EscapeString(a.ServiceName))
	}
	fmt.Fprintf(b, "When: %s at %s", formatDate(a.Date), html.EscapeString(a.Time))
	if a.DurationMinutes > 0 {
		fmt.Fprintf(b, " (%d min)", a.DurationMinutes)
	}
	b.WriteString("\n")
}

func formatDate(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return html.EscapeString(date)
	}
	return d.Format(displayDate)
}

// Lead renders a reminder lead time rounded to the largest whole unit,
// e.g. "in 1 day", "in 3 hours", "in 30 minutes".
func Lead(d time.Duration) string {
	switch {
	case d <= time.Minute:
		return "now"
	case d%(24*time.Hour) == 0:
		return "in " + plural(int(d/(24*time.Hour)), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return "in " + plural(int(d/time.Hour), "hour")
	default:
		return "in " + plural(int(d.Round(time.Minute)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
