package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"barakah-tasks/internal/model"
)

func completedOn(id string, ts time.Time) model.Task {
	return model.Task{ID: id, Status: model.StatusCompleted, CompletedAt: &ts}
}

func TestStreak(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	day := func(back int) time.Time { return now.AddDate(0, 0, -back) }

	assert.Equal(t, 0, Streak(nil, now))
	assert.Equal(t, 0, Streak([]model.Task{completedOn("y", day(1))}, now), "no completion today")

	list := []model.Task{
		completedOn("a", day(0)),
		completedOn("b", day(1)),
		{ID: "c", Subtasks: []model.Task{completedOn("c1", day(2))}},
		completedOn("d", day(4)),
	}
	assert.Equal(t, 3, Streak(list, now))

	pending := model.Task{ID: "e", Status: model.StatusPending, CompletedAt: ptr(day(3))}
	assert.Equal(t, 3, Streak(append(list, pending), now), "reopened tasks do not count")
}

func TestCompletedToday(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	list := []model.Task{
		completedOn("today", now.Add(-time.Hour)),
		completedOn("yesterday", now.Add(-24*time.Hour)),
		{ID: "open", Status: model.StatusPending},
	}
	got := CompletedToday(list, now)
	assert.Len(t, got, 1)
	assert.Equal(t, "today", got[0].ID)
}

func TestTodaysTasksAndByCategory(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	list := []model.Task{
		{ID: "1", DueDate: ptr("2024-01-01"), CategoryID: ptr("worship")},
		{ID: "2", DueDate: ptr("2024-01-02")},
		{ID: "3"},
	}

	today := TodaysTasks(list, now)
	assert.Len(t, today, 1)
	assert.Equal(t, "1", today[0].ID)

	assert.Len(t, ByCategory(list, "worship"), 1)
	assert.Len(t, ByCategory(list, ""), 2)
}
