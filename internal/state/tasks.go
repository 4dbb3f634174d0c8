package state

import (
	"context"
	"fmt"

	"github.com/wesheets/roundtable/pkg/models"
)

// Collections used by the orchestrator. Other components may define
// their own; the kv store does not enumerate collections up front.
const (
	TaskCollection     = "tasks"
	ThreadCollection   = "threads"
	DecisionCollection = "decisions"
)

// SaveTask persists a task snapshot under its id.
func (db *DB) SaveTask(ctx context.Context, task *models.CollaborativeTask) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("%w: task missing id", models.ErrInvalidRequest)
	}
	return SetJSON(ctx, db, TaskCollection, task.ID, task)
}

// LoadTask loads a task snapshot by id.
func (db *DB) LoadTask(ctx context.Context, id string) (*models.CollaborativeTask, error) {
	var task models.CollaborativeTask
	if err := GetJSON(ctx, db, TaskCollection, id, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks loads every persisted task, ordered by id.
func (db *DB) ListTasks(ctx context.Context) ([]*models.CollaborativeTask, error) {
	ids, err := db.Keys(ctx, TaskCollection)
	if err != nil {
		return nil, err
	}
	tasks := make([]*models.CollaborativeTask, 0, len(ids))
	for _, id := range ids {
		task, err := db.LoadTask(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// InterruptedTasks returns persisted tasks that were mid-execution when
// the process stopped. Callers offer these for resume on startup;
// re-attaching one to a scheduler rebuilds its derived state.
func (db *DB) InterruptedTasks(ctx context.Context) ([]*models.CollaborativeTask, error) {
	tasks, err := db.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	var interrupted []*models.CollaborativeTask
	for _, task := range tasks {
		if task.Status == models.TaskStatusExecuting || task.Status == models.TaskStatusReviewing {
			interrupted = append(interrupted, task)
		}
	}
	return interrupted, nil
}
