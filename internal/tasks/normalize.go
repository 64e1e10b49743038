package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"barakah-tasks/internal/model"
)

// Record is a loosely typed task row as it arrives from the store or the
// push stream.
type Record map[string]any

var (
	validStatus = map[string]bool{
		model.StatusPending:    true,
		model.StatusInProgress: true,
		model.StatusCompleted:  true,
		model.StatusCancelled:  true,
	}
	validPriority = map[string]bool{
		model.PriorityLow:    true,
		model.PriorityMedium: true,
		model.PriorityHigh:   true,
		model.PriorityUrgent: true,
	}
	validPattern = map[string]bool{
		model.RecurDaily:   true,
		model.RecurWeekly:  true,
		model.RecurMonthly: true,
	}
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s string) bool { return validStatus[s] }

// ValidPriority reports whether p is a known task priority.
func ValidPriority(p string) bool { return validPriority[p] }

// ValidPattern reports whether p is a known recurrence pattern.
func ValidPattern(p string) bool { return validPattern[p] }

// Normalize converts a raw record into a Task. Nested subtasks are
// normalized too, but their own subtasks are always emptied.
func Normalize(rec Record) (model.Task, error) {
	return normalize(rec, 0)
}

func normalize(rec Record, depth int) (model.Task, error) {
	var t model.Task

	id, err := str(rec, "id")
	if err != nil {
		return t, err
	}
	if id == "" {
		return t, &ValidationError{Field: "id", Reason: "missing"}
	}
	t.ID = id

	if t.UserID, err = str(rec, "user_id"); err != nil {
		return t, err
	}
	if t.Title, err = str(rec, "title"); err != nil {
		return t, err
	}

	if t.Status, err = str(rec, "status"); err != nil {
		return t, err
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	} else if !validStatus[t.Status] {
		return t, &ValidationError{Field: "status", Value: t.Status, Reason: "unknown status"}
	}

	if t.Priority, err = str(rec, "priority"); err != nil {
		return t, err
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	} else if !validPriority[t.Priority] {
		return t, &ValidationError{Field: "priority", Value: t.Priority, Reason: "unknown priority"}
	}

	for field, dst := range map[string]**string{
		"description":        &t.Description,
		"due_date":           &t.DueDate,
		"due_time":           &t.DueTime,
		"category_id":        &t.CategoryID,
		"parent_task_id":     &t.ParentTaskID,
		"recurrence_pattern": &t.RecurrencePattern,
		"recurrence_key":     &t.RecurrenceKey,
	} {
		v, err := str(rec, field)
		if err != nil {
			return t, err
		}
		if v != "" {
			*dst = &v
		}
	}
	if t.DueDate != nil {
		d := *t.DueDate
		if len(d) > 10 {
			d = d[:10]
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return t, &ValidationError{Field: "due_date", Value: *t.DueDate, Reason: "expected YYYY-MM-DD"}
		}
		t.DueDate = &d
	}

	switch v := rec["is_recurring"].(type) {
	case nil:
	case bool:
		t.IsRecurring = v
	default:
		return t, &ValidationError{Field: "is_recurring", Value: v, Reason: "expected boolean"}
	}

	for field, dst := range map[string]**time.Time{
		"completed_at": &t.CompletedAt,
		"updated_at":   &t.UpdatedAt,
	} {
		ts, err := timestamp(rec, field)
		if err != nil {
			return t, err
		}
		*dst = ts
	}
	created, err := timestamp(rec, "created_at")
	if err != nil {
		return t, err
	}
	if created != nil {
		t.CreatedAt = *created
	}

	if depth > 0 {
		t.Subtasks = []model.Task{}
		return t, nil
	}

	switch raw := rec["subtasks"].(type) {
	case nil:
	case []any:
		t.Subtasks = make([]model.Task, 0, len(raw))
		for i, item := range raw {
			sub, ok := asRecord(item)
			if !ok {
				return t, &ValidationError{Field: fmt.Sprintf("subtasks[%d]", i), Reason: "expected object"}
			}
			st, err := normalize(sub, depth+1)
			if err != nil {
				return t, err
			}
			t.Subtasks = append(t.Subtasks, st)
		}
	case []Record:
		t.Subtasks = make([]model.Task, 0, len(raw))
		for _, sub := range raw {
			st, err := normalize(sub, depth+1)
			if err != nil {
				return t, err
			}
			t.Subtasks = append(t.Subtasks, st)
		}
	default:
		return t, &ValidationError{Field: "subtasks", Reason: "expected array"}
	}
	return t, nil
}

// ToRecord renders a task in its wire shape, the same shape Normalize reads.
func ToRecord(t model.Task) (Record, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return rec, nil
}

func asRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case map[string]any:
		return Record(m), true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func str(rec Record, field string) (string, error) {
	switch v := rec[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case *string:
		if v == nil {
			return "", nil
		}
		return *v, nil
	default:
		return "", &ValidationError{Field: field, Value: v, Reason: "expected string"}
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
}

func timestamp(rec Record, field string) (*time.Time, error) {
	switch v := rec[field].(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return &ts, nil
			}
		}
		return nil, &ValidationError{Field: field, Value: v, Reason: "unparseable timestamp"}
	default:
		return nil, &ValidationError{Field: field, Value: v, Reason: "expected timestamp"}
	}
}
