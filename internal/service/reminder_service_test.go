package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barakah-tasks/internal/model"
)

type manualTimer struct {
	wait    time.Duration
	fire    func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (n *recordingNotifier) Notify(_ context.Context, userID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[string][]string)
	}
	n.sent[userID] = append(n.sent[userID], text)
	return nil
}

func newManualReminders(n Notifier) (*ReminderService, *[]*manualTimer) {
	svc := NewReminderService(n, 15*time.Minute, time.UTC)
	svc.now = func() time.Time { return time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC) }
	var timers []*manualTimer
	svc.after = func(d time.Duration, f func()) stopper {
		t := &manualTimer{wait: d, fire: f}
		timers = append(timers, t)
		return t
	}
	return svc, &timers
}

func strPtr(s string) *string { return &s }

func TestReminderFiresBeforeDue(t *testing.T) {
	n := &recordingNotifier{}
	svc, timers := newManualReminders(n)

	svc.Schedule(model.Task{ID: "t1", UserID: "u1", Title: "Jumu'ah <prep>", DueDate: strPtr("2024-03-10"), DueTime: strPtr("12:00")})
	require.Len(t, *timers, 1)
	assert.Equal(t, 3*time.Hour+45*time.Minute, (*timers)[0].wait)
	assert.Equal(t, 1, svc.Pending())

	(*timers)[0].fire()
	assert.Equal(t, 0, svc.Pending())
	require.Len(t, n.sent["u1"], 1)
	assert.Contains(t, n.sent["u1"][0], "Jumu&#39;ah &lt;prep&gt;")
	assert.Contains(t, n.sent["u1"][0], "12:00")
}

func TestReminderRescheduleCancelsPrevious(t *testing.T) {
	n := &recordingNotifier{}
	svc, timers := newManualReminders(n)

	task := model.Task{ID: "t1", UserID: "u1", Title: "Tahajjud", DueDate: strPtr("2024-03-10"), DueTime: strPtr("23:00")}
	svc.Schedule(task)
	task.DueTime = strPtr("23:30")
	svc.Schedule(task)

	require.Len(t, *timers, 2)
	assert.True(t, (*timers)[0].stopped)
	assert.Equal(t, 1, svc.Pending())

	// A stale callback that raced its Stop must not deliver.
	(*timers)[0].fire()
	assert.Empty(t, n.sent)
	assert.Equal(t, 1, svc.Pending())

	svc.Cancel("t1")
	assert.True(t, (*timers)[1].stopped)
	assert.Equal(t, 0, svc.Pending())
}

func TestReminderSkipsPastUntimedAndCompleted(t *testing.T) {
	svc, timers := newManualReminders(&recordingNotifier{})

	svc.Schedule(model.Task{ID: "past", DueDate: strPtr("2024-03-09"), DueTime: strPtr("10:00")})
	svc.Schedule(model.Task{ID: "untimed", DueDate: strPtr("2024-03-11")})
	svc.Schedule(model.Task{ID: "done", Status: model.StatusCompleted, DueDate: strPtr("2024-03-11"), DueTime: strPtr("10:00")})
	assert.Empty(t, *timers)

	svc.Schedule(model.Task{ID: "a", DueDate: strPtr("2024-03-11"), DueTime: strPtr("10:00")})
	svc.Schedule(model.Task{ID: "b", DueDate: strPtr("2024-03-12"), DueTime: strPtr("10:00")})
	assert.Equal(t, 2, svc.Pending())
	svc.Stop()
	assert.Equal(t, 0, svc.Pending())
}

func TestDailySummary(t *testing.T) {
	svc := NewReminderService(nil, 0, time.UTC)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	daily := model.RecurDaily
	cat := "c1"

	list := []model.Task{
		{ID: "0190a6e2-0000-7000-8000-00000000aaaa", Title: "Overdue", DueDate: strPtr("2024-03-01"), CategoryID: &cat},
		{ID: "0190a6e2-0000-7000-8000-00000000bbbb", Title: "Soon", DueDate: strPtr("2024-03-11")},
		{ID: "done", Title: "Finished", Status: model.StatusCompleted},
		{ID: "r", Title: "Morning adhkar", IsRecurring: true, RecurrencePattern: &daily, CreatedAt: now.AddDate(0, 0, -3),
			Subtasks: []model.Task{{ID: "r1", DueDate: strPtr("2024-03-10"), Status: model.StatusCompleted}}},
	}
	report := svc.DailySummary(list, []model.Category{{ID: "c1", Name: "Charity"}}, 4, now)

	assert.True(t, strings.HasPrefix(report, "📋 <b>Daily report</b>"))
	assert.Less(t, strings.Index(report, "Overdue"), strings.Index(report, "Soon"))
	assert.Contains(t, report, "<code>0000aaaa</code>")
	assert.Contains(t, report, "<i>(Charity)</i>")
	assert.Contains(t, report, "<b>overdue</b>")
	assert.NotContains(t, report, "Finished")
	assert.Contains(t, report, "Morning adhkar")
	assert.Contains(t, report, "done today")
	assert.Contains(t, report, "Streak: 4")
}

func TestReminderNotifierAttachedLater(t *testing.T) {
	svc, timers := newManualReminders(nil)
	svc.Schedule(model.Task{ID: "t1", UserID: "u1", Title: "Witr", DueDate: strPtr("2024-03-10"), DueTime: strPtr("22:00")})

	n := &recordingNotifier{}
	svc.SetNotifier(n)
	require.Len(t, *timers, 1)
	(*timers)[0].fire()
	assert.Len(t, n.sent["u1"], 1)
}
