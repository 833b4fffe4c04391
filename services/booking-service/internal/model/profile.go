package model

import "time"

type Profile struct {
	ID                     string    `json:"id"`
	Name                   string    `json:"name"`
	Timezone               string    `json:"timezone"`
	TelegramChatID         int64     `json:"telegram_chat_id,omitempty"`
	ReminderOffsetsMinutes []int     `json:"reminder_offsets_minutes"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Location falls back to UTC when the stored timezone is empty or unknown.
func (p Profile) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Service struct {
	ID              string    `json:"id"`
	ProfileID       string    `json:"profile_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	IsActive        bool      `json:"is_active"`
	IsBlocking      bool      `json:"is_blocking"`
	CreatedAt       time.Time `json:"created_at"`
}

// Bookable is false for inactive services and for the synthetic blocking service.
func (s Service) Bookable() bool {
	return s.IsActive && !s.IsBlocking
}
