package service

import (
	"context"
	"time"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/repository"
	"barakah-tasks/internal/tasks"
)

const statsWindowDays = 30

// PrayerStats summarizes prayers performed over the tracked window.
type PrayerStats struct {
	Since     time.Time
	Days      int
	Expected  int
	Completed int
	ByPrayer  map[string]int
}

// Percent returns the completion rate, 0 when nothing was expected.
func (s PrayerStats) Percent() float64 {
	if s.Expected == 0 {
		return 0
	}
	return float64(s.Completed) * 100 / float64(s.Expected)
}

type TaskStats struct {
	Total     int
	Completed int
	Pending   int
	Overdue   int
	Streak    int
}

func (s TaskStats) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) * 100 / float64(s.Total)
}

// AnalyticsService computes completion statistics. Prayer tracking starts
// at registration so new users are not measured against days before they
// joined.
type AnalyticsService struct {
	prayers *repository.PrayerRepository
}

func NewAnalyticsService(prayers *repository.PrayerRepository) *AnalyticsService {
	return &AnalyticsService{prayers: prayers}
}

// PrayerStats covers the later of the registration day and the start of
// the 30-day window, through today.
func (s *AnalyticsService) PrayerStats(ctx context.Context, user model.User, now time.Time) (PrayerStats, error) {
	loc := user.Location()
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	since := today.AddDate(0, 0, -(statsWindowDays - 1))
	if !user.CreatedAt.IsZero() {
		reg := user.CreatedAt.In(loc)
		registered := time.Date(reg.Year(), reg.Month(), reg.Day(), 0, 0, 0, 0, loc)
		if registered.After(since) {
			since = registered
		}
	}
	if since.After(today) {
		since = today
	}

	days := 0
	for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
		days++
	}

	rows, err := s.prayers.ListRange(ctx, user.ID, since.Format("2006-01-02"), today.Format("2006-01-02"))
	if err != nil {
		return PrayerStats{}, err
	}
	stats := PrayerStats{
		Since:    since,
		Days:     days,
		Expected: days * len(model.Prayers),
		ByPrayer: make(map[string]int, len(model.Prayers)),
	}
	for _, p := range model.Prayers {
		stats.ByPrayer[p] = 0
	}
	for _, row := range rows {
		if !model.IsPrayer(row.PrayerName) {
			continue
		}
		stats.ByPrayer[row.PrayerName]++
		stats.Completed++
	}
	return stats, nil
}

// TaskStats counts tasks and subtasks in a session. Cancelled tasks are
// left out; undated tasks are never overdue.
func (s *AnalyticsService) TaskStats(svc *TaskService, now time.Time) TaskStats {
	var stats TaskStats
	for _, t := range tasks.Flatten(svc.Tasks()) {
		if t.Status == model.StatusCancelled {
			continue
		}
		stats.Total++
		if t.IsCompleted() {
			stats.Completed++
			continue
		}
		stats.Pending++
		due, ok := t.Due(svc.loc)
		if !ok {
			continue
		}
		if t.DueTime == nil {
			due = due.AddDate(0, 0, 1)
		}
		if due.Before(now) {
			stats.Overdue++
		}
	}
	stats.Streak = svc.CalculateTaskStreak()
	return stats
}
