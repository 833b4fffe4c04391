package availability

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// SlotStepMinutes is the granularity of generated slots and of capacity units.
	SlotStepMinutes = 30
	// DefaultDurationMinutes applies whenever an appointment's service duration is unknown.
	DefaultDurationMinutes = 60

	minutesPerDay = 24 * 60
)

var ErrInvalidTimeFormat = errors.New("invalid time format")

// TimeToMinutes parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
// Seconds are validated and then ignored. "24:00" is accepted as end of day.
func TimeToMinutes(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 || !digits(parts[0]) || !digits(parts[1]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	if len(parts) == 3 {
		if len(parts[2]) != 2 || !digits(parts[2]) || parts[2][0] > '5' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
		}
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return h*60 + m, nil
}

// MinutesToTime formats minutes as zero-padded "HH:MM". Values past midnight
// are not wrapped, so 1500 renders as "25:00". Negative input renders "00:00".
func MinutesToTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ResolveDuration is the single place the default duration is applied. It
// is meant for stored durations (an appointment's joined service), not for
// the candidate being checked.
func ResolveDuration(durationMinutes int) int {
	if durationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return durationMinutes
}

// NormalizeTime canonicalises "9:00", "09:00:00" and friends to "HH:MM".
func NormalizeTime(s string) (string, error) {
	m, err := TimeToMinutes(s)
	if err != nil {
		return "", err
	}
	if m >= minutesPerDay {
		return "", fmt.Errorf("%w: %q is not a start time", ErrInvalidTimeFormat, s)
	}
	return MinutesToTime(m), nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
