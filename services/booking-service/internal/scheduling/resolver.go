package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jozofdigital-blip/solo-booking-bot/libs/cache"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/availability"
	"github.com/jozofdigital-blip/solo-booking-bot/services/booking-service/internal/model"
)

var (
	ErrServiceNotFound    = errors.New("service not found")
	ErrServiceUnavailable = errors.New("service is not bookable")
)

// Catalog is the read side of profile configuration.
type Catalog interface {
	GetProfile(ctx context.Context, profileID string) (model.Profile, error)
	ListServices(ctx context.Context, profileID string) ([]model.Service, error)
	ListWorkingHours(ctx context.Context, profileID string) ([]model.WorkingHours, error)
}

// Resolver serves profile configuration through a cache. Appointments never
// go through it.
type Resolver struct {
	catalog Catalog
	cache   cache.Cache
	ttl     time.Duration
	now     func() time.Time
}

func NewResolver(catalog Catalog, c cache.Cache, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{catalog: catalog, cache: c, ttl: ttl, now: time.Now}
}

func profileKey(id string) string      { return "profile:" + id }
func servicesKey(id string) string     { return "services:" + id }
func workingHoursKey(id string) string { return "working_hours:" + id }

func (r *Resolver) Profile(ctx context.Context, profileID string) (model.Profile, error) {
	return cache.GetOrLoad(ctx, r.cache, profileKey(profileID), r.ttl, func(ctx context.Context) (model.Profile, error) {
		return r.catalog.GetProfile(ctx, profileID)
	})
}

func (r *Resolver) Services(ctx context.Context, profileID string) ([]model.Service, error) {
	return cache.GetOrLoad(ctx, r.cache, servicesKey(profileID), r.ttl, func(ctx context.Context) ([]model.Service, error) {
		return r.catalog.ListServices(ctx, profileID)
	})
}

func (r *Resolver) Service(ctx context.Context, profileID, serviceID string) (model.Service, error) {
	services, err := r.Services(ctx, profileID)
	if err != nil {
		return model.Service{}, err
	}
	for _, s := range services {
		if s.ID == serviceID {
			return s, nil
		}
	}
	return model.Service{}, fmt.Errorf("%w: %s", ErrServiceNotFound, serviceID)
}

// Week returns the weekly schedule, or the default week when none was saved.
func (r *Resolver) Week(ctx context.Context, profileID string) (model.WeekSchedule, error) {
	rows, err := cache.GetOrLoad(ctx, r.cache, workingHoursKey(profileID), r.ttl, func(ctx context.Context) ([]model.WorkingHours, error) {
		return r.catalog.ListWorkingHours(ctx, profileID)
	})
	if err != nil {
		return model.WeekSchedule{}, err
	}
	if len(rows) == 0 {
		return model.DefaultWeek(), nil
	}
	return model.NewWeekSchedule(rows), nil
}

func (r *Resolver) InvalidateProfile(ctx context.Context, profileID string) error {
	return r.invalidate(ctx, profileKey(profileID))
}

func (r *Resolver) InvalidateServices(ctx context.Context, profileID string) error {
	return r.invalidate(ctx, servicesKey(profileID))
}

func (r *Resolver) InvalidateWorkingHours(ctx context.Context, profileID string) error {
	return r.invalidate(ctx, workingHoursKey(profileID))
}

func (r *Resolver) invalidate(ctx context.Context, key string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, key)
}

// AvailabilityConfig is everything the slot rules need for one date.
type AvailabilityConfig struct {
	Profile         model.Profile
	Service         model.Service
	Hours           model.WorkingHours
	DurationMinutes int
	// Now is the current wall clock in the profile's timezone.
	Now time.Time
}

func (r *Resolver) GetAvailabilityConfig(ctx context.Context, profileID, serviceID, date string) (AvailabilityConfig, error) {
	day, err := availability.ParseDate(date)
	if err != nil {
		return AvailabilityConfig{}, fmt.Errorf("%w: date %q", availability.ErrInvalidRange, date)
	}
	profile, err := r.Profile(ctx, profileID)
	if err != nil {
		return AvailabilityConfig{}, err
	}
	svc, err := r.Service(ctx, profileID, serviceID)
	if err != nil {
		return AvailabilityConfig{}, err
	}
	if !svc.Bookable() {
		return AvailabilityConfig{}, fmt.Errorf("%w: %s", ErrServiceUnavailable, serviceID)
	}
	week, err := r.Week(ctx, profileID)
	if err != nil {
		return AvailabilityConfig{}, err
	}
	return AvailabilityConfig{
		Profile:         profile,
		Service:         svc,
		Hours:           week.For(day),
		DurationMinutes: availability.ResolveDuration(svc.DurationMinutes),
		Now:             r.now().In(profile.Location()),
	}, nil
}
