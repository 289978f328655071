package queue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/vectorit/core"
)

// MemoryQueue is a volatile Provider backed by a map and an ordered ID list.
// Its contents are lost when the process exits.
type MemoryQueue struct {
	mu     sync.Mutex
	tasks  map[string]*core.ProcessingTask
	order  []string
	closed bool
	now    func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		tasks: make(map[string]*core.ProcessingTask),
		now:   time.Now,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, task *core.ProcessingTask) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	if task.IsParent() {
		return fmt.Errorf("%w: %s", ErrNotRunnable, task.ID)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	q.tasks[task.ID] = task.Clone()
	q.unlink(task.ID)
	if Runnable(task) {
		q.insert(task.ID, task.Priority)
	}
	return nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*core.ProcessingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	if len(q.order) == 0 {
		return nil, nil
	}
	id := q.order[0]
	q.order = q.order[1:]
	return q.tasks[id].Clone(), nil
}

func (q *MemoryQueue) UpdateTaskStatus(_ context.Context, id string, update core.StatusUpdate) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	task, ok := q.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	wasPending := task.Status == core.StatusPending
	if err := task.ApplyStatus(update, q.now()); err != nil {
		return err
	}

	switch {
	case wasPending && task.Status != core.StatusPending:
		q.unlink(id)
	case !wasPending && Runnable(task):
		q.insert(id, task.Priority)
	}
	return nil
}

func (q *MemoryQueue) GetTask(_ context.Context, id string) (*core.ProcessingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	task, ok := q.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

func (q *MemoryQueue) GetAllTasks(_ context.Context) ([]*core.ProcessingTask, error) {
	return q.collect(func(*core.ProcessingTask) bool { return true })
}

func (q *MemoryQueue) GetTasksByStatus(_ context.Context, status core.TaskStatus) ([]*core.ProcessingTask, error) {
	return q.collect(func(t *core.ProcessingTask) bool { return t.Status == status })
}

func (q *MemoryQueue) collect(keep func(*core.ProcessingTask) bool) ([]*core.ProcessingTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}

	var out []*core.ProcessingTask
	for _, task := range q.tasks {
		if keep(task) {
			out = append(out, task.Clone())
		}
	}
	SortByCreated(out)
	return out, nil
}

func (q *MemoryQueue) RemoveTask(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	if _, ok := q.tasks[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	delete(q.tasks, id)
	q.unlink(id)
	return nil
}

func (q *MemoryQueue) Save(_ context.Context, task *core.ProcessingTask) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	q.tasks[task.ID] = task.Clone()
	if !Runnable(task) {
		q.unlink(task.ID)
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.tasks = nil
	q.order = nil
	return nil
}

// Len returns the number of dequeuable tasks.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// insert places id after every queued task of equal or higher priority.
// Callers must hold q.mu.
func (q *MemoryQueue) insert(id string, p core.Priority) {
	i := len(q.order)
	for j, other := range q.order {
		if q.tasks[other].Priority < p {
			i = j
			break
		}
	}
	q.order = slices.Insert(q.order, i, id)
}

// unlink removes id from the order if present. Callers must hold q.mu.
func (q *MemoryQueue) unlink(id string) {
	if i := slices.Index(q.order, id); i >= 0 {
		q.order = slices.Delete(q.order, i, i+1)
	}
}
