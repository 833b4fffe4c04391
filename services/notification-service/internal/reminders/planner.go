package reminders

import (
	"sort"
	"strconv"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/events"
)

// occupies mirrors the booking status machine: only live appointments get reminders.
func occupies(status string) bool {
	return status == "pending" || status == "confirmed"
}

// PlanReminders returns one reminder job per offset, due at StartsAt minus
// the offset. Offsets that are already due at now are skipped.
func PlanReminders(a events.Appointment, now time.Time) []Job {
	if a.OwnerChatID == 0 || a.StartsAt.IsZero() || !occupies(a.Status) {
		return nil
	}
	offsets := append([]int(nil), a.ReminderOffsetsMinutes...)
	sort.Sort(sort.Reverse(sort.IntSlice(offsets)))

	seen := map[int]bool{}
	var jobs []Job
	for _, m := range offsets {
		if m <= 0 || seen[m] {
			continue
		}
		seen[m] = true
		runAt := a.StartsAt.Add(-time.Duration(m) * time.Minute)
		if !runAt.After(now) {
			continue
		}
		jobs = append(jobs, Job{
			IdempotencyKey: a.AppointmentID + "|" + a.StartsAt.UTC().Format(time.RFC3339) + "|" + strconv.Itoa(m),
			Kind:           KindReminder,
			AppointmentID:  a.AppointmentID,
			ProfileID:      a.ProfileID,
			ChatID:         a.OwnerChatID,
			RunAt:          runAt.UTC(),
			Payload:        Payload{Appointment: a},
			MaxAttempts:    defaultMaxAttempts,
		})
	}
	return jobs
}

// OwnerNotice returns an immediate job for the profile owner. eventID keys
// it so a redelivered event never notifies twice.
func OwnerNotice(kind Kind, eventID string, a events.Appointment, reason string, now time.Time) (Job, bool) {
	if a.OwnerChatID == 0 || eventID == "" {
		return Job{}, false
	}
	return Job{
		IdempotencyKey: string(kind) + "|" + eventID,
		Kind:           kind,
		AppointmentID:  a.AppointmentID,
		ProfileID:      a.ProfileID,
		ChatID:         a.OwnerChatID,
		RunAt:          now.UTC(),
		Payload:        Payload{Appointment: a, Reason: reason},
		MaxAttempts:    defaultMaxAttempts,
	}, true
}
