package tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barakah-tasks/internal/model"
)

func TestNormalizeDefaults(t *testing.T) {
	task, err := Normalize(Record{"id": "t1", "user_id": "u1", "title": "Read Surah Al-Kahf"})
	require.NoError(t, err)

	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Nil(t, task.Description)
	assert.Nil(t, task.UpdatedAt)
}

func TestNormalizeParsesOptionalFields(t *testing.T) {
	task, err := Normalize(Record{
		"id":             "t1",
		"title":          "Charity",
		"description":    "",
		"due_date":       "2024-03-01T00:00:00Z",
		"parent_task_id": "p1",
		"is_recurring":   true,
		"updated_at":     "2024-03-01T10:00:00.123456+00:00",
		"completed_at":   nil,
	})
	require.NoError(t, err)

	assert.Nil(t, task.Description)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, "2024-03-01", *task.DueDate)
	require.NotNil(t, task.ParentTaskID)
	assert.Equal(t, "p1", *task.ParentTaskID)
	assert.True(t, task.IsRecurring)
	require.NotNil(t, task.UpdatedAt)
	assert.Equal(t, 10, task.UpdatedAt.Hour())
	assert.Nil(t, task.CompletedAt)
}

func TestNormalizeCapsNestingAtOneLevel(t *testing.T) {
	raw := Record{
		"id":    "root",
		"title": "Ramadan prep",
		"subtasks": []any{
			map[string]any{
				"id":    "child",
				"title": "Plan iftar",
				"subtasks": []any{
					map[string]any{"id": "grandchild", "title": "Buy dates"},
				},
			},
			map[string]any{"id": "child2", "title": "Plan suhoor"},
		},
	}

	task, err := Normalize(raw)
	require.NoError(t, err)
	require.Len(t, task.Subtasks, 2)
	for _, sub := range task.Subtasks {
		assert.NotNil(t, sub.Subtasks)
		assert.Empty(t, sub.Subtasks)
	}
}

func TestNormalizeRejectsInvalidEnums(t *testing.T) {
	_, err := Normalize(Record{"id": "t1", "status": "archived"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "status", verr.Field)

	_, err = Normalize(Record{"id": "t1", "priority": "critical"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "priority", verr.Field)

	_, err = Normalize(Record{"title": "no id"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "id", verr.Field)

	_, err = Normalize(Record{"id": "t1", "title": 42})
	assert.Error(t, err)

	_, err = Normalize(Record{"id": "t1", "updated_at": "yesterday"})
	assert.Error(t, err)
}

func TestToRecordRoundTripsThroughNormalize(t *testing.T) {
	updated := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	desc := "after Fajr"
	in := model.Task{
		ID:          "t1",
		UserID:      "u1",
		Title:       "Morning adhkar",
		Description: &desc,
		Priority:    model.PriorityHigh,
		Status:      model.StatusInProgress,
		CreatedAt:   updated.Add(-time.Hour),
		UpdatedAt:   &updated,
	}

	rec, err := ToRecord(in)
	require.NoError(t, err)
	out, err := Normalize(rec)
	require.NoError(t, err)

	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, *in.Description, *out.Description)
	assert.Equal(t, in.Priority, out.Priority)
	assert.True(t, in.UpdatedAt.Equal(*out.UpdatedAt))
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
}
