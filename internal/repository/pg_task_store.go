package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"barakah-tasks/internal/model"
	"barakah-tasks/internal/tasks"
)

// TaskChangesChannel is the NOTIFY channel the tasks trigger publishes on.
const TaskChangesChannel = "task_changes"

const taskColumns = `id, user_id, title, description, priority, status, due_date, due_time, category_id,
	parent_task_id, is_recurring, recurrence_pattern, recurrence_key, completed_at, created_at, updated_at`

// PgTaskStore is a PostgreSQL-backed task store. Change events are emitted
// by a trigger through pg_notify rather than from Go.
type PgTaskStore struct {
	pool *pgxpool.Pool
}

// NewPgTaskStore creates a PgTaskStore.
func NewPgTaskStore(pool *pgxpool.Pool) *PgTaskStore {
	return &PgTaskStore{pool: pool}
}

// EnsureTable creates the tasks table and its change trigger if they don't exist.
func (s *PgTaskStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id                 TEXT PRIMARY KEY,
			user_id            TEXT NOT NULL,
			title              TEXT NOT NULL,
			description        TEXT,
			priority           TEXT NOT NULL DEFAULT 'medium',
			status             TEXT NOT NULL DEFAULT 'pending',
			due_date           TEXT,
			due_time           TEXT,
			category_id        TEXT,
			parent_task_id     TEXT,
			is_recurring       BOOLEAN NOT NULL DEFAULT FALSE,
			recurrence_pattern TEXT,
			recurrence_key     TEXT UNIQUE,
			completed_at       TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id) WHERE parent_task_id IS NOT NULL`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION notify_task_change() RETURNS trigger AS $$
		DECLARE
			payload JSON;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				payload := json_build_object('type', TG_OP, 'table', TG_TABLE_NAME, 'user_id', OLD.user_id,
					'old', json_build_object('id', OLD.id), 'commit_timestamp', NOW());
			ELSE
				payload := json_build_object('type', TG_OP, 'table', TG_TABLE_NAME, 'user_id', NEW.user_id,
					'new', row_to_json(NEW), 'commit_timestamp', NOW());
			END IF;
			PERFORM pg_notify('`+TaskChangesChannel+`', payload::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		DO $$ BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'tasks_notify') THEN
				CREATE TRIGGER tasks_notify AFTER INSERT OR UPDATE OR DELETE ON tasks
				FOR EACH ROW EXECUTE FUNCTION notify_task_change();
			END IF;
		END $$`)
	return err
}

// List returns all of a user's tasks as flat rows, oldest first.
func (s *PgTaskStore) List(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// Insert stores a new task, assigning its id and timestamps.
func (s *PgTaskStore) Insert(ctx context.Context, t *model.Task) (*model.Task, error) {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		row.ID, row.UserID, row.Title, row.Description, row.Priority, row.Status, row.DueDate, row.DueTime,
		row.CategoryID, row.ParentTaskID, row.IsRecurring, row.RecurrencePattern, row.RecurrenceKey,
		row.CompletedAt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", translatePgError(err))
	}
	return &row, nil
}

// Update applies column updates to a task and returns the stored row.
func (s *PgTaskStore) Update(ctx context.Context, userID, id string, fields map[string]any) (*model.Task, error) {
	query, args, err := buildUpdate(userID, id, fields, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return nil, err
	}
	t, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, translatePgError(err))
	}
	return t, nil
}

// buildUpdate renders the UPDATE statement for fields. Columns are sorted so
// the placeholder numbering is stable; $1 is always updated_at.
func buildUpdate(userID, id string, fields map[string]any, now time.Time) (string, []any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !updatableColumns[k] {
			return "", nil, fmt.Errorf("update task: unknown column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	setClauses := "updated_at = $1"
	args := []any{now}
	for _, k := range keys {
		args = append(args, fields[k])
		setClauses += fmt.Sprintf(", %s = $%d", k, len(args))
	}
	args = append(args, userID, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE user_id = $%d AND id = $%d RETURNING %s",
		setClauses, len(args)-1, len(args), taskColumns)
	return query, args, nil
}

// Delete removes a task and its subtasks.
func (s *PgTaskStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE user_id = $1 AND (id = $2 OR parent_task_id = $2)`, userID, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete task %s: %w", id, tasks.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Status, &t.DueDate, &t.DueTime,
		&t.CategoryID, &t.ParentTaskID, &t.IsRecurring, &t.RecurrencePattern, &t.RecurrenceKey,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTaskRows(rows pgx.Rows) ([]model.Task, error) {
	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return out, nil
}

func translatePgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return tasks.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return tasks.ErrDuplicate
	}
	return err
}
