package queue

import (
	"context"
	"slices"
	"strings"

	"github.com/poiesic/vectorit/core"
)

// Provider is a priority queue of processing tasks plus a record store for
// every task it has seen. Implementations must be safe for concurrent use and
// must never hand out references to their internal state.
//
// Only pending tasks are dequeued. Higher priority tasks are dequeued first;
// tasks of equal priority are dequeued in the order they were enqueued.
type Provider interface {
	// Enqueue stores task and positions it by priority. Re-enqueueing an
	// existing task moves it to the back of its (possibly new) priority class.
	// Returns ErrNotRunnable for parent tasks.
	Enqueue(ctx context.Context, task *core.ProcessingTask) error

	// Dequeue atomically removes and returns the next pending task.
	// Returns nil, nil when nothing is pending.
	Dequeue(ctx context.Context) (*core.ProcessingTask, error)

	// UpdateTaskStatus applies a lifecycle transition. Leaving pending removes
	// the task from the queue order; returning to pending puts it back.
	UpdateTaskStatus(ctx context.Context, id string, update core.StatusUpdate) error

	// GetTask returns a copy of the task or ErrTaskNotFound.
	GetTask(ctx context.Context, id string) (*core.ProcessingTask, error)

	// GetAllTasks returns copies of every stored task, oldest first.
	GetAllTasks(ctx context.Context) ([]*core.ProcessingTask, error)

	// RemoveTask deletes the task record and its queue position.
	RemoveTask(ctx context.Context, id string) error

	// GetTasksByStatus returns copies of the tasks in status, oldest first.
	GetTasksByStatus(ctx context.Context, status core.TaskStatus) ([]*core.ProcessingTask, error)

	// Save stores a record without making it runnable. It is used for parent
	// tasks and for field changes on tasks that are not pending.
	Save(ctx context.Context, task *core.ProcessingTask) error

	// Close releases resources. The queue cannot be used afterwards.
	Close() error
}

// SortByCreated orders tasks oldest first, breaking ties by ID.
func SortByCreated(tasks []*core.ProcessingTask) {
	slices.SortFunc(tasks, func(a, b *core.ProcessingTask) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// Runnable reports whether a task belongs in the queue order.
func Runnable(task *core.ProcessingTask) bool {
	return task.Status == core.StatusPending && !task.IsParent()
}
