package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/prayertimes"
	"barakah-tasks/internal/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

type fakeTimings struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTimings) Timings(_ context.Context, lat, lon float64, method int, date time.Time) (*prayertimes.Timings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, date.Format("2006-01-02"))
	return &prayertimes.Timings{
		Date: date.Format("2006-01-02"), Fajr: "05:00", Sunrise: "06:20",
		Dhuhr: "12:15", Asr: "15:30", Maghrib: "18:05", Isha: "19:30",
	}, nil
}

func TestPrayerCoordinatesFallback(t *testing.T) {
	svc := NewPrayerService(&fakeTimings{}, nil, 0)

	lat, lon, method := svc.Coordinates(model.User{})
	assert.Equal(t, prayertimes.DefaultLatitude, lat)
	assert.Equal(t, prayertimes.DefaultLongitude, lon)
	assert.Equal(t, prayertimes.DefaultMethod, method)

	la, lo := 51.5, -0.12
	lat, lon, method = svc.Coordinates(model.User{Latitude: &la, Longitude: &lo, CalculationMethod: 2})
	assert.Equal(t, 51.5, lat)
	assert.Equal(t, -0.12, lon)
	assert.Equal(t, 2, method)
}

func TestPrayerNextPrayerAndCache(t *testing.T) {
	fetcher := &fakeTimings{}
	svc := NewPrayerService(fetcher, nil, 4)
	user := model.User{ID: "u1", Timezone: "UTC"}
	ctx := context.Background()

	next, err := svc.NextPrayer(ctx, user, time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, model.Asr, next.Name)
	assert.Equal(t, time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC), next.At)

	next, err = svc.NextPrayer(ctx, user, time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, model.Fajr, next.Name)
	assert.Equal(t, time.Date(2024, 3, 11, 5, 0, 0, 0, time.UTC), next.At)

	assert.Equal(t, []string{"2024-03-10", "2024-03-11"}, fetcher.calls)

	n, err := svc.Refresh(ctx, []model.User{user})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, fetcher.calls, 3)
}

func TestPrayerMarkUnmark(t *testing.T) {
	repo := repository.NewPrayerRepository(newTestDB(t))
	svc := NewPrayerService(&fakeTimings{}, repo, 4)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC) }
	user := model.User{ID: "u1", Timezone: "UTC"}
	ctx := context.Background()

	require.NoError(t, svc.Mark(ctx, user, model.Dhuhr))
	require.NoError(t, svc.Mark(ctx, user, model.Dhuhr))
	assert.ErrorIs(t, svc.Mark(ctx, user, "witr"), ErrUnknownPrayer)

	done, err := svc.Completed(ctx, user, "2024-03-10")
	require.NoError(t, err)
	assert.True(t, done[model.Dhuhr])
	assert.False(t, done[model.Fajr])
	assert.Len(t, done, 5)

	require.NoError(t, svc.Unmark(ctx, user, model.Dhuhr))
	done, err = svc.Completed(ctx, user, "2024-03-10")
	require.NoError(t, err)
	assert.False(t, done[model.Dhuhr])
}

func TestAnalyticsFairTracking(t *testing.T) {
	repo := repository.NewPrayerRepository(newTestDB(t))
	analytics := NewAnalyticsService(repo)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC)

	newcomer := model.User{ID: "new", Timezone: "UTC", CreatedAt: now.AddDate(0, 0, -2)}
	for _, day := range []string{"2024-03-08", "2024-03-09", "2024-03-10"} {
		require.NoError(t, repo.Mark(ctx, "new", model.Fajr, day, now))
	}
	stats, err := analytics.PrayerStats(ctx, newcomer, now)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Days)
	assert.Equal(t, 15, stats.Expected)
	assert.Equal(t, 3, stats.Completed)
	assert.Equal(t, 3, stats.ByPrayer[model.Fajr])
	assert.InDelta(t, 20.0, stats.Percent(), 0.001)

	veteran := model.User{ID: "old", Timezone: "UTC", CreatedAt: now.AddDate(-1, 0, 0)}
	require.NoError(t, repo.Mark(ctx, "old", model.Isha, "2024-01-01", now))
	stats, err = analytics.PrayerStats(ctx, veteran, now)
	require.NoError(t, err)
	assert.Equal(t, 30, stats.Days)
	assert.Equal(t, 0, stats.Completed, "outside the window")
	assert.Equal(t, 0.0, stats.Percent())
}

func TestAnalyticsTaskStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, TaskInput{Title: "Late", DueDate: "2023-12-30"})
	require.NoError(t, err)
	_, err = svc.CreateTask(ctx, TaskInput{Title: "Today", DueDate: "2024-01-01"})
	require.NoError(t, err)
	done, err := svc.CreateTask(ctx, TaskInput{Title: "Done"})
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, done.ID)
	require.NoError(t, err)
	cancelled, err := svc.CreateTask(ctx, TaskInput{Title: "Dropped"})
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, cancelled.ID, map[string]any{"status": model.StatusCancelled})
	require.NoError(t, err)

	stats := NewAnalyticsService(nil).TaskStats(svc, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Overdue)
	assert.Equal(t, 1, stats.Streak)
}
