package availability

import "github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"

// HasEnoughContinuousTime checks that the slot finishes by workingEndTime
// (when given) and overlaps nothing. It does not check the opening time;
// see FitsWorkingHours.
func HasEnoughContinuousTime(date, startTime string, durationMinutes int, existing []Booking, workingEndTime string) (bool, error) {
	if workingEndTime != "" {
		start, err := TimeToMinutes(startTime)
		if err != nil {
			return false, err
		}
		end, err := TimeToMinutes(workingEndTime)
		if err != nil {
			return false, err
		}
		if start+durationMinutes > end {
			return false, nil
		}
	}
	overlap, err := HasOverlap(date, startTime, durationMinutes, existing, "")
	if err != nil {
		return false, err
	}
	return !overlap, nil
}

// FitsWorkingHours reports whether the whole slot lies inside an open day.
func FitsWorkingHours(startTime string, durationMinutes int, hours model.WorkingHours) (bool, error) {
	start, err := TimeToMinutes(startTime)
	if err != nil {
		return false, err
	}
	if !hours.IsWorking {
		return false, nil
	}
	return start >= hours.Start && start+durationMinutes <= hours.End, nil
}

// CanBook is the authoritative slot-eligibility decision used on every write:
// the day is open, the slot is contained in working hours, and it overlaps no
// other non-cancelled booking.
func CanBook(date, startTime string, durationMinutes int, hours model.WorkingHours, existing []Booking, excludeID string) (bool, error) {
	fits, err := FitsWorkingHours(startTime, durationMinutes, hours)
	if err != nil || !fits {
		return false, err
	}
	overlap, err := HasOverlap(date, startTime, durationMinutes, existing, excludeID)
	if err != nil {
		return false, err
	}
	return !overlap, nil
}
