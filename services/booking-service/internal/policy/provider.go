package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

// Provider yields how long before an appointment reminders go out.
type Provider interface {
	ReminderOffsets(ctx context.Context, profileID string) ([]time.Duration, error)
}

type staticProvider struct {
	offsets []time.Duration
}

func NewStaticProvider(offsets []time.Duration) Provider {
	return &staticProvider{offsets: offsets}
}

func (p *staticProvider) ReminderOffsets(_ context.Context, _ string) ([]time.Duration, error) {
	return p.offsets, nil
}

// ProfileSource is satisfied by scheduling.Resolver.
type ProfileSource interface {
	Profile(ctx context.Context, profileID string) (model.Profile, error)
}

type profileProvider struct {
	profiles ProfileSource
	fallback []time.Duration
	logger   *slog.Logger
}

// NewProfileProvider reads offsets from the profile and falls back to the
// static defaults when the profile has none or cannot be read.
func NewProfileProvider(profiles ProfileSource, fallback []time.Duration, logger *slog.Logger) Provider {
	return &profileProvider{profiles: profiles, fallback: fallback, logger: logger}
}

func (p *profileProvider) ReminderOffsets(ctx context.Context, profileID string) ([]time.Duration, error) {
	profile, err := p.profiles.Profile(ctx, profileID)
	if err != nil {
		p.logger.Warn("profile offsets fetch failed; using defaults", "profile_id", profileID, "err", err)
		return p.fallback, nil
	}
	offsets := Offsets(profile.ReminderOffsetsMinutes)
	if len(offsets) == 0 {
		return p.fallback, nil
	}
	return offsets, nil
}

// Offsets converts minute offsets, dropping non-positive and duplicate values.
func Offsets(minutes []int) []time.Duration {
	seen := map[int]bool{}
	var out []time.Duration
	for _, m := range minutes {
		if m <= 0 || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, time.Duration(m)*time.Minute)
	}
	return out
}

// ParseOffsets parses a comma-separated env value like "24h,1h".
func ParseOffsets(items []string) []time.Duration {
	var out []time.Duration
	for _, item := range items {
		if d, err := time.ParseDuration(item); err == nil && d > 0 {
			out = append(out, d)
		}
	}
	return out
}
