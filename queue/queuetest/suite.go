// Package queuetest provides a conformance suite for queue.Provider
// implementations.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty queue. The suite closes it.
type Factory func(t *testing.T) queue.Provider

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// NewTask builds a valid pending task with n chunks.
func NewTask(id string, p core.Priority, n int) *core.ProcessingTask {
	chunks := make([]core.TextChunk, n)
	for i := range chunks {
		content := fmt.Sprintf("chunk %d of %s", i, id)
		chunks[i] = core.TextChunk{
			Index:         i,
			Content:       content,
			TokenCount:    4,
			StartPosition: i * 100,
			EndPosition:   i*100 + len(content),
			Metadata:      core.ChunkMetadata{Type: core.ChunkTypeText},
		}
	}
	return &core.ProcessingTask{
		ID:        id,
		FileName:  id + ".txt",
		FileType:  "text",
		FileSize:  int64(n * 100),
		Chunks:    chunks,
		Status:    core.StatusPending,
		Priority:  p,
		CreatedAt: base,
		Options:   core.TaskOptions{BatchSize: 10, MaxRetries: 3, Timeout: 23 * time.Second},
	}
}

// Run executes the conformance suite against queues built by newQueue.
func Run(t *testing.T, newQueue Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, q queue.Provider)
	}{
		{"DequeueEmpty", testDequeueEmpty},
		{"PriorityOrder", testPriorityOrder},
		{"ReturnsCopies", testReturnsCopies},
		{"UpdateStatus", testUpdateStatus},
		{"RetryRequeues", testRetryRequeues},
		{"Reprioritize", testReprioritize},
		{"Queries", testQueries},
		{"Remove", testRemove},
		{"ParentTasks", testParentTasks},
		{"ConcurrentDequeue", testConcurrentDequeue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQueue(t)
			t.Cleanup(func() { _ = q.Close() })
			tt.fn(t, q)
		})
	}
}

func drain(t *testing.T, q queue.Provider) []string {
	t.Helper()
	var ids []string
	for {
		task, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		if task == nil {
			return ids
		}
		ids = append(ids, task.ID)
	}
}

func testDequeueEmpty(t *testing.T, q queue.Provider) {
	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
}

func testPriorityOrder(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	for _, task := range []*core.ProcessingTask{
		NewTask("low-1", core.PriorityLow, 1),
		NewTask("normal-1", core.PriorityNormal, 1),
		NewTask("urgent-1", core.PriorityUrgent, 1),
		NewTask("normal-2", core.PriorityNormal, 1),
		NewTask("high-1", core.PriorityHigh, 1),
		NewTask("urgent-2", core.PriorityUrgent, 1),
	} {
		require.NoError(t, q.Enqueue(ctx, task))
	}

	assert.Equal(t, []string{"urgent-1", "urgent-2", "high-1", "normal-1", "normal-2", "low-1"}, drain(t, q))
}

func testReturnsCopies(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	orig := NewTask("t1", core.PriorityNormal, 2)
	require.NoError(t, q.Enqueue(ctx, orig))
	orig.Chunks[0].Content = "mutated after enqueue"

	got, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "chunk 0 of t1", got.Chunks[0].Content)
	assert.Len(t, got.Chunks, 2)
	assert.Equal(t, core.PriorityNormal, got.Priority)
	assert.Equal(t, 23*time.Second, got.Options.Timeout)
	assert.True(t, got.CreatedAt.Equal(base))

	got.Chunks[1].Content = "mutated copy"
	again, err := q.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "chunk 1 of t1", again.Chunks[1].Content)

	_, err = q.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func testUpdateStatus(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewTask("a", core.PriorityNormal, 1)))
	require.NoError(t, q.Enqueue(ctx, NewTask("b", core.PriorityNormal, 1)))

	// Leaving pending removes the task from the order.
	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusProcessing, Progress: 40}))

	got, err := q.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, got.Status)
	assert.Equal(t, 40, got.Progress)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusCompleted, Progress: 100}))
	got, err = q.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, got.CompletedAt)

	err = q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusPending})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	err = q.UpdateTaskStatus(ctx, "missing", core.StatusUpdate{Status: core.StatusProcessing})
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)

	assert.Equal(t, []string{"b"}, drain(t, q))
}

func testRetryRequeues(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewTask("a", core.PriorityNormal, 1)))

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusFailed, Error: "boom"}))
	assert.Empty(t, drain(t, q))

	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusPending}))

	got, err := q.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, []string{"a"}, drain(t, q))
}

func testReprioritize(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	a := NewTask("a", core.PriorityNormal, 1)
	b := NewTask("b", core.PriorityNormal, 1)
	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))

	b.Priority = core.PriorityHigh
	require.NoError(t, q.Enqueue(ctx, b))

	assert.Equal(t, []string{"b", "a"}, drain(t, q))
}

func testQueries(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	for i, id := range []string{"c", "a", "b"} {
		task := NewTask(id, core.PriorityNormal, 1)
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, q.Enqueue(ctx, task))
	}
	require.NoError(t, q.UpdateTaskStatus(ctx, "a", core.StatusUpdate{Status: core.StatusCancelled}))

	all, err := q.GetAllTasks(ctx)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, task := range all {
		ids[i] = task.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	pending, err := q.GetTasksByStatus(ctx, core.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].ID)
	assert.Equal(t, "b", pending[1].ID)

	cancelled, err := q.GetTasksByStatus(ctx, core.StatusCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "a", cancelled[0].ID)

	failed, err := q.GetTasksByStatus(ctx, core.StatusFailed)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func testRemove(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, NewTask("a", core.PriorityNormal, 1)))
	require.NoError(t, q.Enqueue(ctx, NewTask("b", core.PriorityNormal, 1)))

	require.NoError(t, q.RemoveTask(ctx, "a"))
	assert.ErrorIs(t, q.RemoveTask(ctx, "a"), queue.ErrTaskNotFound)

	_, err := q.GetTask(ctx, "a")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	assert.Equal(t, []string{"b"}, drain(t, q))
}

func testParentTasks(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	parent := NewTask("parent", core.PriorityNormal, 0)
	parent.Chunks = nil
	parent.Metadata.IsParentTask = true
	parent.Metadata.SubTaskIDs = []string{"child-1"}

	assert.ErrorIs(t, q.Enqueue(ctx, parent), queue.ErrNotRunnable)
	require.NoError(t, q.Save(ctx, parent))

	child := NewTask("child-1", core.PriorityNormal, 1)
	child.Metadata.ParentTaskID = "parent"
	child.Metadata.PartNumber = 1
	child.Metadata.TotalParts = 1
	require.NoError(t, q.Enqueue(ctx, child))

	got, err := q.GetTask(ctx, "parent")
	require.NoError(t, err)
	assert.True(t, got.IsParent())
	assert.Equal(t, []string{"child-1"}, got.Metadata.SubTaskIDs)
	assert.Empty(t, got.Chunks)

	assert.Equal(t, []string{"child-1"}, drain(t, q))
}

func testConcurrentDequeue(t *testing.T, q queue.Provider) {
	ctx := context.Background()
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, q.Enqueue(ctx, NewTask(fmt.Sprintf("t%02d", i), core.PriorityNormal, 1)))
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Dequeue(ctx)
				if err != nil || task == nil {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, n)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "task %s claimed %d times", id, count)
	}
}
