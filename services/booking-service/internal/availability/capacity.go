package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

var ErrInvalidRange = errors.New("invalid date range")

// CapacityMode selects how a booking consumes day capacity.
type CapacityMode string

const (
	// CapacityCountAppointments counts each booking as one slot regardless of
	// its length. A 90-minute appointment is undercounted.
	CapacityCountAppointments CapacityMode = "count"
	// CapacityDurationWeighted counts ceil(duration/SlotStepMinutes) slots.
	CapacityDurationWeighted CapacityMode = "weighted"
)

func ParseCapacityMode(s string) CapacityMode {
	if strings.EqualFold(strings.TrimSpace(s), string(CapacityDurationWeighted)) {
		return CapacityDurationWeighted
	}
	return CapacityCountAppointments
}

type DayCapacity struct {
	Date          string `json:"date"`
	IsWorking     bool   `json:"is_working"`
	TotalSlots    int    `json:"total_slots"`
	OccupiedSlots int    `json:"occupied_slots"`
	Full          bool   `json:"full"`
}

// Bookable is false for closed days whatever their capacity.
func (d DayCapacity) Bookable() bool {
	return d.IsWorking && !d.Full
}

func units(b Booking, mode CapacityMode) int {
	if mode != CapacityDurationWeighted {
		return 1
	}
	d := ResolveDuration(b.DurationMinutes)
	return (d + SlotStepMinutes - 1) / SlotStepMinutes
}

// DayCapacityFor computes capacity for a single date. existing may contain
// other dates and cancelled bookings; both are ignored.
func DayCapacityFor(date string, hours model.WorkingHours, existing []Booking, mode CapacityMode) DayCapacity {
	var occupiedSlots int
	for _, b := range existing {
		if b.Date == date && b.Status.Occupies() {
			occupiedSlots += units(b, mode)
		}
	}
	return capacity(date, hours, occupiedSlots)
}

func capacity(date string, hours model.WorkingHours, occupiedSlots int) DayCapacity {
	out := DayCapacity{Date: date, IsWorking: hours.IsWorking, OccupiedSlots: occupiedSlots}
	if !hours.IsWorking {
		return out
	}
	if span := hours.End - hours.Start; span > 0 {
		out.TotalSlots = span / SlotStepMinutes
	}
	out.Full = out.OccupiedSlots >= out.TotalSlots
	return out
}

// BusyDays is the bulk form of DayCapacityFor: bookings are bucketed by date
// once, then one entry is produced for every day in [from, to].
func BusyDays(from, to string, week model.WeekSchedule, existing []Booking, mode CapacityMode) ([]DayCapacity, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}

	perDay := make(map[string]int)
	for _, b := range existing {
		if b.Status.Occupies() {
			perDay[b.Date] += units(b, mode)
		}
	}

	days := int(end.Sub(start).Hours()/24) + 1
	out := make([]DayCapacity, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(dateLayout)
		out = append(out, capacity(date, week.For(d), perDay[date]))
	}
	return out, nil
}

// DaysBetween returns the inclusive number of days in [from, to].
func DaysBetween(from, to string) (int, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("%w: from %q", ErrInvalidRange, from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("%w: to %q", ErrInvalidRange, to)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	}
	return int(end.Sub(start).Hours()/24) + 1, nil
}

// ParseDate validates a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
