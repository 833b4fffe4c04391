package availability

import (
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

// GenerateSlots returns every SlotStepMinutes-aligned start time from the
// opening time such that [start, start+duration) fits the working window and
// intersects no non-cancelled booking on date. The result is ascending and
// never nil; a non-positive duration yields no slots.
func GenerateSlots(date string, hours model.WorkingHours, durationMinutes int, existing []Booking) ([]string, error) {
	slots := []string{}
	if !hours.IsWorking || durationMinutes <= 0 {
		return slots, nil
	}
	busy, err := occupied(date, existing, "")
	if err != nil {
		return nil, err
	}

	for t := hours.Start; t+durationMinutes <= hours.End; t += SlotStepMinutes {
		if !overlapsAny(t, t+durationMinutes, busy) {
			slots = append(slots, MinutesToTime(t))
		}
	}
	return slots, nil
}

func overlapsAny(start, end int, busy []interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

// DropPast removes slots that already started. now must be expressed in the
// profile's timezone; dates before now's date lose every slot.
func DropPast(date string, slots []string, now time.Time) []string {
	today := now.Format(dateLayout)
	switch {
	case date > today:
		return slots
	case date < today:
		return []string{}
	}
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		m, err := TimeToMinutes(s)
		if err != nil {
			continue
		}
		if m*60 >= nowSec {
			out = append(out, s)
		}
	}
	return out
}
