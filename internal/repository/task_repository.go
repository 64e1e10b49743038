package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/realtime"
	"barakah-tasks/internal/tasks"
)

// Publisher receives change events after successful writes.
type Publisher interface {
	Publish(e realtime.Event)
}

// updatableColumns lists the task columns Update accepts.
var updatableColumns = map[string]bool{
	"title":              true,
	"description":        true,
	"priority":           true,
	"status":             true,
	"due_date":           true,
	"due_time":           true,
	"category_id":        true,
	"parent_task_id":     true,
	"is_recurring":       true,
	"recurrence_pattern": true,
	"completed_at":       true,
}

// TaskRepository handles CRUD for tasks and publishes every write.
type TaskRepository struct {
	db  *gorm.DB
	pub Publisher
}

func NewTaskRepository(db *gorm.DB, pub Publisher) *TaskRepository {
	return &TaskRepository{db: db, pub: pub}
}

// List returns all of a user's tasks as flat rows, oldest first.
func (r *TaskRepository) List(ctx context.Context, userID string) ([]model.Task, error) {
	var rows []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return rows, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, userID, taskID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, taskID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tasks.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

// Insert stores a new task, assigning its id and timestamps.
func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) (*model.Task, error) {
	row := t.Clone()
	row.Subtasks = nil
	if row.ID == "" {
		row.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC().Truncate(time.Microsecond)
	row.CreatedAt = now
	row.UpdatedAt = &now
	if row.Status == "" {
		row.Status = model.StatusPending
	}
	if row.Priority == "" {
		row.Priority = model.PriorityMedium
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("create task: %w", tasks.ErrDuplicate)
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	r.publish(realtime.Insert, row)
	return &row, nil
}

// Update applies column updates to a task and returns the stored row.
func (r *TaskRepository) Update(ctx context.Context, userID, id string, fields map[string]any) (*model.Task, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if !updatableColumns[k] {
			return nil, fmt.Errorf("update task: unknown column %q", k)
		}
		updates[k] = v
	}
	updates["updated_at"] = time.Now().UTC().Truncate(time.Microsecond)

	var row model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Task{}).Where("user_id = ? AND id = ?", userID, id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return tasks.ErrNotFound
		}
		return tx.Where("id = ?", id).First(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	r.publish(realtime.Update, row)
	return &row, nil
}

// Delete removes a task and its subtasks.
func (r *TaskRepository) Delete(ctx context.Context, userID, id string) error {
	var removed []model.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND (id = ? OR parent_task_id = ?)", userID, id, id).
			Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return tasks.ErrNotFound
		}
		return tx.Where("user_id = ? AND (id = ? OR parent_task_id = ?)", userID, id, id).
			Delete(&model.Task{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	for _, row := range removed {
		r.publish(realtime.Delete, row)
	}
	return nil
}

func (r *TaskRepository) publish(kind realtime.EventType, row model.Task) {
	if r.pub == nil {
		return
	}
	e := realtime.Event{Type: kind, Table: tasks.Table, UserID: row.UserID, Timestamp: time.Now()}
	if kind == realtime.Delete {
		e.Old = map[string]any{"id": row.ID}
	} else {
		rec, err := tasks.ToRecord(row)
		if err != nil {
			log.Printf("[warn] publish task %s: %v", row.ID, err)
			return
		}
		e.New = rec
	}
	r.pub.Publish(e)
}
