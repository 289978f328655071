// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
	"github.com/poiesic/vectorit/storage"
)

// TaskQueue implements queue.Provider on BadgerDB. Task records survive
// restarts, and so does the dequeue order.
type TaskQueue struct {
	backend *Backend
	seq     *badger.Sequence
	owned   bool
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

var _ queue.Provider = (*TaskQueue)(nil)

// NewTaskQueue creates a queue stored in backend. Closing the queue does not
// close the backend.
func NewTaskQueue(backend *Backend) (*TaskQueue, error) {
	seq, err := backend.GetSequence(taskOrderSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire queue sequence: %w", err)
	}
	return &TaskQueue{
		backend: backend,
		seq:     seq,
		logger:  backend.logger.With("component", "task-queue"),
		now:     time.Now,
	}, nil
}

// OpenTaskQueue opens a queue in its own database at path.
func OpenTaskQueue(path string, opts ...BackendOption) (queue.Provider, error) {
	backend, err := OpenBackend(path, false, opts...)
	if err != nil {
		return nil, err
	}
	q, err := NewTaskQueue(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	q.owned = true
	return q, nil
}

// enter guards every operation against use after Close.
func (q *TaskQueue) enter() (func(), error) {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return nil, queue.ErrClosed
	}
	return q.mu.RUnlock, nil
}

// Enqueue stores task and positions it by priority.
func (q *TaskQueue) Enqueue(ctx context.Context, task *core.ProcessingTask) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	if task.IsParent() {
		return fmt.Errorf("%w: %s", queue.ErrNotRunnable, task.ID)
	}
	done, err := q.enter()
	if err != nil {
		return err
	}
	defer done()

	return q.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := tx.Set(makeTaskKey(task.ID), storage.MarshalTask(task)); err != nil {
			return err
		}
		if err := unlink(tx, task.ID); err != nil {
			return err
		}
		if queue.Runnable(task) {
			return q.link(tx, task)
		}
		return nil
	})
}

// Dequeue removes and returns the head of the order index.
func (q *TaskQueue) Dequeue(ctx context.Context) (*core.ProcessingTask, error) {
	done, err := q.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	var task *core.ProcessingTask
	err = q.backend.Update(ctx, func(tx *badger.Txn) error {
		task = nil
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskOrderPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		iter.Rewind()
		if !iter.Valid() {
			iter.Close()
			return nil
		}
		item := iter.Item()
		orderKey := item.KeyCopy(nil)
		id, err := item.ValueCopy(nil)
		iter.Close()
		if err != nil {
			return err
		}

		if err := tx.Delete(orderKey); err != nil {
			return err
		}
		if err := tx.Delete(makeTaskOrderRefKey(string(id))); err != nil {
			return err
		}
		task, err = readTask(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	if task != nil {
		q.logger.Debug("dequeued task", "task_id", task.ID, "priority", task.Priority)
	}
	return task, nil
}

// UpdateTaskStatus applies a lifecycle transition and maintains the order index.
func (q *TaskQueue) UpdateTaskStatus(ctx context.Context, id string, update core.StatusUpdate) error {
	done, err := q.enter()
	if err != nil {
		return err
	}
	defer done()

	return q.backend.Update(ctx, func(tx *badger.Txn) error {
		task, err := readTask(tx, id)
		if err != nil {
			return err
		}
		wasPending := task.Status == core.StatusPending
		if err := task.ApplyStatus(update, q.now()); err != nil {
			return err
		}
		if err := tx.Set(makeTaskKey(id), storage.MarshalTask(task)); err != nil {
			return err
		}

		switch {
		case wasPending && task.Status != core.StatusPending:
			return unlink(tx, id)
		case !wasPending && queue.Runnable(task):
			return q.link(tx, task)
		}
		return nil
	})
}

func (q *TaskQueue) GetTask(_ context.Context, id string) (*core.ProcessingTask, error) {
	done, err := q.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	var task *core.ProcessingTask
	err = q.backend.WithTx(func(tx *badger.Txn) error {
		task, err = readTask(tx, id)
		return err
	}, false)
	return task, err
}

func (q *TaskQueue) GetAllTasks(_ context.Context) ([]*core.ProcessingTask, error) {
	return q.collect(func(*core.ProcessingTask) bool { return true })
}

func (q *TaskQueue) GetTasksByStatus(_ context.Context, status core.TaskStatus) ([]*core.ProcessingTask, error) {
	return q.collect(func(t *core.ProcessingTask) bool { return t.Status == status })
}

func (q *TaskQueue) collect(keep func(*core.ProcessingTask) bool) ([]*core.ProcessingTask, error) {
	done, err := q.enter()
	if err != nil {
		return nil, err
	}
	defer done()

	var out []*core.ProcessingTask
	err = q.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(taskPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var task *core.ProcessingTask
			err := iter.Item().Value(func(val []byte) error {
				var err error
				task, err = storage.UnmarshalTask(val)
				return err
			})
			if err != nil {
				return err
			}
			if keep(task) {
				out = append(out, task)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	queue.SortByCreated(out)
	return out, nil
}

func (q *TaskQueue) RemoveTask(ctx context.Context, id string) error {
	done, err := q.enter()
	if err != nil {
		return err
	}
	defer done()

	return q.backend.Update(ctx, func(tx *badger.Txn) error {
		if _, err := tx.Get(makeTaskKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
			}
			return err
		}
		if err := unlink(tx, id); err != nil {
			return err
		}
		return tx.Delete(makeTaskKey(id))
	})
}

// Save stores a record without making it runnable.
func (q *TaskQueue) Save(ctx context.Context, task *core.ProcessingTask) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	done, err := q.enter()
	if err != nil {
		return err
	}
	defer done()

	return q.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := tx.Set(makeTaskKey(task.ID), storage.MarshalTask(task)); err != nil {
			return err
		}
		if !queue.Runnable(task) {
			return unlink(tx, task.ID)
		}
		return nil
	})
}

// Close releases the sequence lease, and the database when the queue opened it.
func (q *TaskQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	err := q.seq.Release()
	if q.owned {
		err = errors.Join(err, q.backend.Close())
	}
	return err
}

// link appends task to the end of its priority class.
func (q *TaskQueue) link(tx *badger.Txn, task *core.ProcessingTask) error {
	seq, err := q.seq.Next()
	if err != nil {
		return err
	}
	orderKey := makeTaskOrderKey(task.Priority, seq)
	if err := tx.Set(orderKey, []byte(task.ID)); err != nil {
		return err
	}
	return tx.Set(makeTaskOrderRefKey(task.ID), orderKey)
}

// unlink removes id from the order index if present.
func unlink(tx *badger.Txn, id string) error {
	refKey := makeTaskOrderRefKey(id)
	item, err := tx.Get(refKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	orderKey, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if err := tx.Delete(orderKey); err != nil {
		return err
	}
	return tx.Delete(refKey)
}

func readTask(tx *badger.Txn, id string) (*core.ProcessingTask, error) {
	item, err := tx.Get(makeTaskKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
		}
		return nil, err
	}
	var task *core.ProcessingTask
	err = item.Value(func(val []byte) error {
		task, err = storage.UnmarshalTask(val)
		return err
	})
	return task, err
}
