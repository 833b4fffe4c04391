package model

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWorkingHours = errors.New("invalid working hours")

// WorkingHours is one weekday of a profile's schedule. Start and End are
// minutes since local midnight; Weekday 0 is Sunday.
type WorkingHours struct {
	Weekday   int  `json:"weekday"`
	Start     int  `json:"start_minute"`
	End       int  `json:"end_minute"`
	IsWorking bool `json:"is_working"`
}

func (h WorkingHours) Validate() error {
	if h.Weekday < 0 || h.Weekday > 6 {
		return fmt.Errorf("%w: weekday %d", ErrInvalidWorkingHours, h.Weekday)
	}
	if !h.IsWorking {
		return nil
	}
	if h.Start < 0 || h.End > 24*60 || h.Start >= h.End {
		return fmt.Errorf("%w: weekday %d window %d-%d", ErrInvalidWorkingHours, h.Weekday, h.Start, h.End)
	}
	return nil
}

// WeekSchedule is indexed by weekday.
type WeekSchedule [7]WorkingHours

// DefaultWeek is used for profiles that never saved a schedule: Mon-Fri 09:00-17:00.
func DefaultWeek() WeekSchedule {
	var w WeekSchedule
	for d := 0; d < 7; d++ {
		w[d] = WorkingHours{Weekday: d, Start: 9 * 60, End: 17 * 60, IsWorking: d >= 1 && d <= 5}
	}
	return w
}

// NewWeekSchedule places rows by weekday. Missing weekdays are closed.
func NewWeekSchedule(rows []WorkingHours) WeekSchedule {
	var w WeekSchedule
	for d := 0; d < 7; d++ {
		w[d] = WorkingHours{Weekday: d}
	}
	for _, r := range rows {
		if r.Weekday >= 0 && r.Weekday <= 6 {
			w[r.Weekday] = r
		}
	}
	return w
}

func (w WeekSchedule) For(day time.Time) WorkingHours {
	return w[int(day.Weekday())]
}

func (w WeekSchedule) Rows() []WorkingHours {
	return append([]WorkingHours(nil), w[:]...)
}

func (w WeekSchedule) Validate() error {
	for d, h := range w {
		if h.Weekday != d {
			return fmt.Errorf("%w: row %d has weekday %d", ErrInvalidWorkingHours, d, h.Weekday)
		}
		if err := h.Validate(); err != nil {
			return err
		}
	}
	return nil
}
