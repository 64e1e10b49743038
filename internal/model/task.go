package model

import "time"

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Recurrence patterns.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
)

// Task represents a single item in the planner. Subtasks are held one level
// deep; a task with a ParentTaskID only ever appears inside its parent.
type Task struct {
	ID                string     `gorm:"primaryKey" json:"id"`
	UserID            string     `gorm:"index" json:"user_id"`
	Title             string     `json:"title"`
	Description       *string    `json:"description,omitempty"`
	Priority          string     `gorm:"default:medium" json:"priority"`
	Status            string     `gorm:"default:pending;index" json:"status"`
	DueDate           *string    `gorm:"index" json:"due_date,omitempty"` // YYYY-MM-DD
	DueTime           *string    `json:"due_time,omitempty"`              // HH:MM
	CategoryID        *string    `gorm:"index" json:"category_id,omitempty"`
	ParentTaskID      *string    `gorm:"index" json:"parent_task_id,omitempty"`
	IsRecurring       bool       `gorm:"default:false" json:"is_recurring"`
	RecurrencePattern *string    `json:"recurrence_pattern,omitempty"`
	RecurrenceKey     *string    `gorm:"uniqueIndex" json:"recurrence_key,omitempty"` // generated instances only
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`

	Subtasks []Task `gorm:"-" json:"subtasks"`
}

// Due returns the due moment in loc, or false when the task has no due date.
// A due date without a time is due at the start of the day.
func (t Task) Due(loc *time.Location) (time.Time, bool) {
	if t.DueDate == nil || *t.DueDate == "" {
		return time.Time{}, false
	}
	if t.DueTime != nil && *t.DueTime != "" {
		due, err := time.ParseInLocation("2006-01-02 15:04", *t.DueDate+" "+*t.DueTime, loc)
		if err == nil {
			return due, true
		}
	}
	due, err := time.ParseInLocation("2006-01-02", *t.DueDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}

// IsCompleted reports whether the task is done.
func (t Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// Clone returns a deep copy of the task, including subtasks.
func (t Task) Clone() Task {
	cp := t
	cp.Description = cloneString(t.Description)
	cp.DueDate = cloneString(t.DueDate)
	cp.DueTime = cloneString(t.DueTime)
	cp.CategoryID = cloneString(t.CategoryID)
	cp.ParentTaskID = cloneString(t.ParentTaskID)
	cp.RecurrencePattern = cloneString(t.RecurrencePattern)
	cp.RecurrenceKey = cloneString(t.RecurrenceKey)
	cp.CompletedAt = cloneTime(t.CompletedAt)
	cp.UpdatedAt = cloneTime(t.UpdatedAt)
	if t.Subtasks != nil {
		cp.Subtasks = make([]Task, len(t.Subtasks))
		for i, sub := range t.Subtasks {
			cp.Subtasks[i] = sub.Clone()
		}
	}
	return cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
