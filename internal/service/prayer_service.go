package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/prayertimes"
	"barakah-tasks/internal/repository"
)

var ErrUnknownPrayer = errors.New("unknown prayer")

// TimingsFetcher resolves prayer timings for a place and day.
type TimingsFetcher interface {
	Timings(ctx context.Context, lat, lon float64, method int, date time.Time) (*prayertimes.Timings, error)
}

// NextPrayer is the upcoming prayer and when it starts.
type NextPrayer struct {
	Name string
	At   time.Time
}

// PrayerService serves daily timings and tracks completed prayers.
type PrayerService struct {
	fetcher TimingsFetcher
	repo    *repository.PrayerRepository
	method  int
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]*prayertimes.Timings
}

func NewPrayerService(fetcher TimingsFetcher, repo *repository.PrayerRepository, method int) *PrayerService {
	if method <= 0 {
		method = prayertimes.DefaultMethod
	}
	return &PrayerService{
		fetcher: fetcher,
		repo:    repo,
		method:  method,
		now:     time.Now,
		cache:   make(map[string]*prayertimes.Timings),
	}
}

// Coordinates returns where timings are computed for the user. Users who
// have not shared a location get Mecca.
func (s *PrayerService) Coordinates(user model.User) (lat, lon float64, method int) {
	lat, lon = prayertimes.DefaultLatitude, prayertimes.DefaultLongitude
	if user.Latitude != nil && user.Longitude != nil {
		lat, lon = *user.Latitude, *user.Longitude
	}
	method = s.method
	if user.CalculationMethod > 0 {
		method = user.CalculationMethod
	}
	return lat, lon, method
}

// TimingsOn returns the user's timings for the calendar day of day.
func (s *PrayerService) TimingsOn(ctx context.Context, user model.User, day time.Time) (*prayertimes.Timings, error) {
	lat, lon, method := s.Coordinates(user)
	date := day.In(user.Location())
	key := fmt.Sprintf("%.4f,%.4f,%d,%s", lat, lon, method, date.Format("2006-01-02"))

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	timings, err := s.fetcher.Timings(ctx, lat, lon, method, date)
	if err != nil {
		return nil, fmt.Errorf("prayer timings: %w", err)
	}
	s.mu.Lock()
	s.cache[key] = timings
	s.mu.Unlock()
	return timings, nil
}

// Today returns today's timings in the user's zone.
func (s *PrayerService) Today(ctx context.Context, user model.User) (*prayertimes.Timings, error) {
	return s.TimingsOn(ctx, user, s.now())
}

// Mark records a prayer as performed today.
func (s *PrayerService) Mark(ctx context.Context, user model.User, prayer string) error {
	if !model.IsPrayer(prayer) {
		return fmt.Errorf("%w: %q", ErrUnknownPrayer, prayer)
	}
	now := s.now()
	return s.repo.Mark(ctx, user.ID, prayer, now.In(user.Location()).Format("2006-01-02"), now)
}

// Unmark removes today's completion for a prayer.
func (s *PrayerService) Unmark(ctx context.Context, user model.User, prayer string) error {
	if !model.IsPrayer(prayer) {
		return fmt.Errorf("%w: %q", ErrUnknownPrayer, prayer)
	}
	return s.repo.Unmark(ctx, user.ID, prayer, s.now().In(user.Location()).Format("2006-01-02"))
}

// Completed reports which prayers were performed on date (YYYY-MM-DD).
func (s *PrayerService) Completed(ctx context.Context, user model.User, date string) (map[string]bool, error) {
	rows, err := s.repo.ListRange(ctx, user.ID, date, date)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(model.Prayers))
	for _, p := range model.Prayers {
		done[p] = false
	}
	for _, row := range rows {
		done[row.PrayerName] = true
	}
	return done, nil
}

// NextPrayer returns the first prayer after now, rolling over to
// tomorrow's Fajr after Isha.
func (s *PrayerService) NextPrayer(ctx context.Context, user model.User, now time.Time) (NextPrayer, error) {
	loc := user.Location()
	today, err := s.TimingsOn(ctx, user, now)
	if err != nil {
		return NextPrayer{}, err
	}
	for _, p := range model.Prayers {
		at, err := today.At(p, loc)
		if err != nil {
			return NextPrayer{}, err
		}
		if at.After(now) {
			return NextPrayer{Name: p, At: at}, nil
		}
	}

	tomorrow, err := s.TimingsOn(ctx, user, now.In(loc).AddDate(0, 0, 1))
	if err != nil {
		return NextPrayer{}, err
	}
	at, err := tomorrow.At(model.Fajr, loc)
	if err != nil {
		return NextPrayer{}, err
	}
	return NextPrayer{Name: model.Fajr, At: at}, nil
}

// Refresh drops cached timings and prefetches today's for every user.
func (s *PrayerService) Refresh(ctx context.Context, users []model.User) (int, error) {
	s.mu.Lock()
	s.cache = make(map[string]*prayertimes.Timings)
	s.mu.Unlock()

	fetched := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return fetched, err
		}
		if _, err := s.Today(ctx, user); err != nil {
			log.Printf("[warn] refresh timings user=%s: %v", user.ID, err)
			continue
		}
		fetched++
	}
	return fetched, nil
}
