// Package redis implements queue.Provider on Redis so several processes can
// share one task queue.
//
// Task records are stored as MUS-encoded strings. Pending tasks live in a
// sorted set whose score packs the inverted priority above an insertion
// sequence, so ZPOPMIN yields the highest priority, oldest task atomically.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
	"github.com/poiesic/vectorit/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces all keys written by the queue.
const DefaultPrefix = "vectorit"

// priorityStride separates priority classes in the pending set score. It
// stays well inside float64's exact integer range.
const priorityStride = 1e12

// Option configures a TaskQueue.
type Option func(*TaskQueue) error

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(q *TaskQueue) error {
		if prefix == "" {
			return errors.New("prefix cannot be empty")
		}
		q.prefix = prefix
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *TaskQueue) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		q.logger = logger
		return nil
	}
}

// TaskQueue is a Redis-backed queue.Provider.
type TaskQueue struct {
	client *redis.Client
	owned  bool
	prefix string
	logger *slog.Logger
	now    func() time.Time
	closed atomic.Bool
}

var _ queue.Provider = (*TaskQueue)(nil)

// NewTaskQueue creates a queue using client. Closing the queue does not close
// the client.
func NewTaskQueue(client *redis.Client, opts ...Option) (*TaskQueue, error) {
	q := &TaskQueue{
		client: client,
		prefix: DefaultPrefix,
		logger: slog.Default().With("component", "redis-queue"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Dial connects to the Redis server at url (redis://[:password@]host:port/db)
// and returns a queue that owns the connection.
func Dial(ctx context.Context, url string, opts ...Option) (queue.Provider, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	q, err := NewTaskQueue(client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	q.owned = true
	return q, nil
}

func (q *TaskQueue) taskKey(id string) string { return q.prefix + ":task:" + id }
func (q *TaskQueue) pendingKey() string       { return q.prefix + ":pending" }
func (q *TaskQueue) indexKey() string         { return q.prefix + ":tasks" }
func (q *TaskQueue) seqKey() string           { return q.prefix + ":seq" }

func (q *TaskQueue) score(ctx context.Context, p core.Priority) (float64, error) {
	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return 0, err
	}
	return float64(core.MaxPriority-p)*priorityStride + float64(seq), nil
}

func (q *TaskQueue) checkOpen() error {
	if q.closed.Load() {
		return queue.ErrClosed
	}
	return nil
}

func (q *TaskQueue) Enqueue(ctx context.Context, task *core.ProcessingTask) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	if task.IsParent() {
		return fmt.Errorf("%w: %s", queue.ErrNotRunnable, task.ID)
	}
	if err := q.checkOpen(); err != nil {
		return err
	}

	runnable := queue.Runnable(task)
	var score float64
	if runnable {
		var err error
		if score, err = q.score(ctx, task.Priority); err != nil {
			return err
		}
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.taskKey(task.ID), storage.MarshalTask(task), 0)
		pipe.SAdd(ctx, q.indexKey(), task.ID)
		if runnable {
			pipe.ZAdd(ctx, q.pendingKey(), redis.Z{Score: score, Member: task.ID})
		} else {
			pipe.ZRem(ctx, q.pendingKey(), task.ID)
		}
		return nil
	})
	return err
}

func (q *TaskQueue) Dequeue(ctx context.Context) (*core.ProcessingTask, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	for {
		popped, err := q.client.ZPopMin(ctx, q.pendingKey(), 1).Result()
		if err != nil {
			return nil, err
		}
		if len(popped) == 0 {
			return nil, nil
		}
		id, _ := popped[0].Member.(string)
		task, err := q.get(ctx, q.client, id)
		if errors.Is(err, queue.ErrTaskNotFound) {
			// Removed between ZPOPMIN and GET; take the next one.
			continue
		}
		if err != nil {
			return nil, err
		}
		q.logger.Debug("dequeued task", "task_id", task.ID, "priority", task.Priority)
		return task, nil
	}
}

func (q *TaskQueue) UpdateTaskStatus(ctx context.Context, id string, update core.StatusUpdate) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	key := q.taskKey(id)
	for {
		err := q.client.Watch(ctx, func(tx *redis.Tx) error {
			task, err := q.get(ctx, tx, id)
			if err != nil {
				return err
			}
			wasPending := task.Status == core.StatusPending
			if err := task.ApplyStatus(update, q.now()); err != nil {
				return err
			}

			var score float64
			requeue := !wasPending && queue.Runnable(task)
			if requeue {
				if score, err = q.score(ctx, task.Priority); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, storage.MarshalTask(task), 0)
				switch {
				case wasPending && task.Status != core.StatusPending:
					pipe.ZRem(ctx, q.pendingKey(), id)
				case requeue:
					pipe.ZAdd(ctx, q.pendingKey(), redis.Z{Score: score, Member: id})
				}
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (q *TaskQueue) GetTask(ctx context.Context, id string) (*core.ProcessingTask, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	return q.get(ctx, q.client, id)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (q *TaskQueue) get(ctx context.Context, c getter, id string) (*core.ProcessingTask, error) {
	data, err := c.Get(ctx, q.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalTask(data)
}

func (q *TaskQueue) GetAllTasks(ctx context.Context) ([]*core.ProcessingTask, error) {
	return q.collect(ctx, func(*core.ProcessingTask) bool { return true })
}

func (q *TaskQueue) GetTasksByStatus(ctx context.Context, status core.TaskStatus) ([]*core.ProcessingTask, error) {
	return q.collect(ctx, func(t *core.ProcessingTask) bool { return t.Status == status })
}

func (q *TaskQueue) collect(ctx context.Context, keep func(*core.ProcessingTask) bool) ([]*core.ProcessingTask, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}
	ids, err := q.client.SMembers(ctx, q.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = q.taskKey(id)
	}
	values, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []*core.ProcessingTask
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		task, err := storage.UnmarshalTask([]byte(s))
		if err != nil {
			return nil, err
		}
		if keep(task) {
			out = append(out, task)
		}
	}
	queue.SortByCreated(out)
	return out, nil
}

func (q *TaskQueue) RemoveTask(ctx context.Context, id string) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	var deleted *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, q.taskKey(id))
		pipe.SRem(ctx, q.indexKey(), id)
		pipe.ZRem(ctx, q.pendingKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if deleted.Val() == 0 {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, id)
	}
	return nil
}

func (q *TaskQueue) Save(ctx context.Context, task *core.ProcessingTask) error {
	if err := core.ValidateTask(task); err != nil {
		return err
	}
	if err := q.checkOpen(); err != nil {
		return err
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, q.taskKey(task.ID), storage.MarshalTask(task), 0)
		pipe.SAdd(ctx, q.indexKey(), task.ID)
		if !queue.Runnable(task) {
			pipe.ZRem(ctx, q.pendingKey(), task.ID)
		}
		return nil
	})
	return err
}

// Close marks the queue closed, and closes the client when the queue dialed it.
func (q *TaskQueue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	if q.owned {
		return q.client.Close()
	}
	return nil
}
