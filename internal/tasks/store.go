package tasks

import (
	"context"

	"barakah-tasks/internal/model"
)

// Table is the name of the tasks table on the push stream.
const Table = "tasks"

// Store is the remote task store. Implementations publish a change event
// for every successful write.
type Store interface {
	List(ctx context.Context, userID string) ([]model.Task, error)
	Insert(ctx context.Context, t *model.Task) (*model.Task, error)
	Update(ctx context.Context, userID, id string, fields map[string]any) (*model.Task, error)
	Delete(ctx context.Context, userID, id string) error
}
