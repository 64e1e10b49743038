package tasks

import (
	"time"

	"barakah-tasks/internal/model"
)

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TodaysTasks returns top-level tasks due on now's date.
func TodaysTasks(list []model.Task, now time.Time) []model.Task {
	today := now.Format("2006-01-02")
	var out []model.Task
	for _, t := range list {
		if t.DueDate != nil && *t.DueDate == today {
			out = append(out, t.Clone())
		}
	}
	return out
}

// CompletedToday returns tasks and subtasks completed on now's local date.
func CompletedToday(list []model.Task, now time.Time) []model.Task {
	var out []model.Task
	for _, t := range Flatten(list) {
		if t.IsCompleted() && t.CompletedAt != nil && sameDay(t.CompletedAt.In(now.Location()), now) {
			cp := t.Clone()
			out = append(out, cp)
		}
	}
	return out
}

// ByCategory returns top-level tasks in the category. An empty categoryID
// selects uncategorized tasks.
func ByCategory(list []model.Task, categoryID string) []model.Task {
	var out []model.Task
	for _, t := range list {
		switch {
		case categoryID == "" && t.CategoryID == nil:
		case t.CategoryID != nil && *t.CategoryID == categoryID:
		default:
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// Streak counts consecutive days, ending today, with at least one completed
// task. It stops at the first day without one.
func Streak(list []model.Task, now time.Time) int {
	loc := now.Location()
	days := make(map[string]bool)
	for _, t := range Flatten(list) {
		if t.IsCompleted() && t.CompletedAt != nil {
			days[t.CompletedAt.In(loc).Format("2006-01-02")] = true
		}
	}

	streak := 0
	day := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, loc)
	for days[day.Format("2006-01-02")] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
