package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/tasks"
)

// Notifier delivers a message to a user.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

type stopper interface {
	Stop() bool
}

// ReminderService keeps one cancellable reminder per task and builds the
// periodic summary report.
type ReminderService struct {
	notifier Notifier
	lead     time.Duration
	loc      *time.Location
	now      func() time.Time
	after    func(d time.Duration, f func()) stopper

	mu     sync.Mutex
	timers map[string]stopper
}

func NewReminderService(notifier Notifier, lead time.Duration, loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.Local
	}
	return &ReminderService{
		notifier: notifier,
		lead:     lead,
		loc:      loc,
		now:      time.Now,
		after: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		timers: make(map[string]stopper),
	}
}

// SetNotifier replaces the delivery target. The bot and the reminder
// service need each other, so the bot is attached after both exist.
func (s *ReminderService) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Schedule arms a reminder for a task with a due date and time, replacing
// any earlier reminder for the same task. Tasks without a future due moment
// only have their old reminder cancelled.
func (s *ReminderService) Schedule(t model.Task) {
	s.Cancel(t.ID)
	if t.DueTime == nil || t.IsCompleted() {
		return
	}
	due, ok := t.Due(s.loc)
	if !ok {
		return
	}
	wait := due.Add(-s.lead).Sub(s.now())
	if wait <= 0 {
		return
	}

	task := t.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	var timer stopper
	timer = s.after(wait, func() {
		s.mu.Lock()
		if s.timers[task.ID] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, task.ID)
		s.mu.Unlock()
		s.fire(task, due)
	})
	s.timers[task.ID] = timer
}

// Cancel disarms the task's reminder, if any.
func (s *ReminderService) Cancel(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[taskID]; ok {
		timer.Stop()
		delete(s.timers, taskID)
	}
}

// Pending returns the number of armed reminders.
func (s *ReminderService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop disarms every reminder.
func (s *ReminderService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

func (s *ReminderService) fire(t model.Task, due time.Time) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier == nil {
		return
	}
	text := fmt.Sprintf("⏰ <b>Reminder</b>\n%s is due at %s.", html.EscapeString(strings.TrimSpace(t.Title)), due.Format("15:04"))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := notifier.Notify(ctx, t.UserID, text); err != nil {
		log.Printf("[warn] reminder for task %s: %v", t.ID, err)
	}
}

// DailySummary renders the periodic report for one user's task list.
func (s *ReminderService) DailySummary(list []model.Task, categories []model.Category, streak int, now time.Time) string {
	catNames := make(map[string]string)
	for _, cat := range categories {
		catNames[cat.ID] = cat.Name
	}

	var pending []model.Task
	var recurring []model.Task
	for _, task := range list {
		switch {
		case task.IsRecurring && task.RecurrencePattern != nil:
			if RecursOn(task, now) {
				recurring = append(recurring, task)
			}
		case !task.IsCompleted() && task.Status != model.StatusCancelled:
			pending = append(pending, task)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		di, iok := pending[i].Due(now.Location())
		dj, jok := pending[j].Due(now.Location())
		switch {
		case !iok && !jok:
			return pending[i].CreatedAt.After(pending[j].CreatedAt)
		case !iok:
			return false
		case !jok:
			return true
		default:
			return di.Before(dj)
		}
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily report</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("Monday, 02 Jan 2006")))

	builder.WriteString("🔥 <b>Open tasks</b>\n")
	if len(pending) == 0 {
		builder.WriteString("— nothing open\n")
	} else {
		for _, task := range pending {
			builder.WriteString(FormatTask(task, catNames, now))
		}
	}

	builder.WriteString("\n♻️ <b>Recurring today</b>\n")
	if len(recurring) == 0 {
		builder.WriteString("— nothing scheduled\n")
	} else {
		for _, task := range recurring {
			builder.WriteString(formatRecurring(task, catNames, now))
		}
	}

	if streak > 0 {
		builder.WriteString(fmt.Sprintf("\n✨ Streak: %d day(s) in a row", streak))
	}

	return strings.TrimSpace(builder.String())
}

// FormatTask renders one task line with its due hint, subtask progress and
// description. catNames may be nil.
func FormatTask(task model.Task, catNames map[string]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	due, hasDue := task.Due(now.Location())
	if hasDue {
		switch {
		case now.After(due):
			icon = "⚠️"
		case due.Sub(now) <= 48*time.Hour:
			icon = "⏳"
		}
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s", icon, tasks.ShortID(task.ID), title))
	sb.WriteString(categorySuffix(task.CategoryID, catNames))

	if hasDue {
		if now.After(due) {
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s — <b>overdue</b>", due.Format("2006-01-02")))
		} else {
			daysLeft := int(due.Sub(now).Hours()/24) + 1
			sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · ≈%d day(s) left", due.Format("2006-01-02"), daysLeft))
		}
	}

	if n := len(task.Subtasks); n > 0 {
		done := 0
		for _, sub := range task.Subtasks {
			if sub.IsCompleted() {
				done++
			}
		}
		sb.WriteString(fmt.Sprintf("\n   ☑️ %d/%d subtasks", done, n))
	}

	if task.Description != nil {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(*task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatRecurring(task model.Task, catNames map[string]string, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("♻️ %s", html.EscapeString(strings.TrimSpace(task.Title))))
	sb.WriteString(categorySuffix(task.CategoryID, catNames))
	sb.WriteString(fmt.Sprintf("\n   🔄 %s", *task.RecurrencePattern))

	today := now.Format("2006-01-02")
	doneToday := false
	for _, sub := range task.Subtasks {
		if sub.DueDate != nil && *sub.DueDate == today && sub.IsCompleted() {
			doneToday = true
		}
	}
	if doneToday {
		sb.WriteString(" · ✅ done today")
	}

	sb.WriteByte('\n')
	return sb.String()
}

func categorySuffix(categoryID *string, catNames map[string]string) string {
	if categoryID == nil {
		return ""
	}
	name, ok := catNames[*categoryID]
	if !ok {
		return ""
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(trimmed))
}
