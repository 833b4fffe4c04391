package availability

import (
	"fmt"

	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

// Booking is the slice of an appointment the availability rules look at.
// DurationMinutes is the joined service duration; zero means unknown.
type Booking struct {
	ID              string
	Date            string
	Time            string
	DurationMinutes int
	Status          model.Status
}

func FromAppointments(apts []model.Appointment) []Booking {
	out := make([]Booking, 0, len(apts))
	for _, a := range apts {
		out = append(out, Booking{
			ID:              a.ID,
			Date:            a.Date,
			Time:            a.Time,
			DurationMinutes: a.DurationMinutes,
			Status:          a.Status,
		})
	}
	return out
}

// Overlaps applies half-open semantics: [aStart,aEnd) and [bStart,bEnd)
// intersect iff aStart < bEnd && bStart < aEnd. Touching endpoints don't.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

type interval struct {
	start int
	end   int
}

// occupied returns the intervals held on date, skipping cancelled bookings
// and excludeID.
func occupied(date string, existing []Booking, excludeID string) ([]interval, error) {
	var out []interval
	for _, b := range existing {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		if !b.Status.Occupies() || b.Date != date {
			continue
		}
		start, err := TimeToMinutes(b.Time)
		if err != nil {
			return nil, fmt.Errorf("appointment %s: %w", b.ID, err)
		}
		out = append(out, interval{start: start, end: start + ResolveDuration(b.DurationMinutes)})
	}
	return out, nil
}

// HasOverlap reports whether [startTime, startTime+duration) on date
// intersects any non-cancelled booking other than excludeID. The candidate
// duration is taken as given; only existing bookings fall back to the default.
func HasOverlap(date, startTime string, durationMinutes int, existing []Booking, excludeID string) (bool, error) {
	slotStart, err := TimeToMinutes(startTime)
	if err != nil {
		return false, err
	}
	busy, err := occupied(date, existing, excludeID)
	if err != nil {
		return false, err
	}
	return overlapsAny(slotStart, slotStart+durationMinutes, busy), nil
}
