package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
)

type fakeCanceller struct {
	running map[string]bool
	calls   []string
}

func (f *fakeCanceller) CancelTask(id string) bool {
	f.calls = append(f.calls, id)
	return f.running[id]
}

func makeChunks(n int) []core.TextChunk {
	chunks := make([]core.TextChunk, n)
	for i := range chunks {
		content := fmt.Sprintf("chunk number %d", i)
		chunks[i] = core.TextChunk{
			Index:         i,
			Content:       content,
			TokenCount:    3,
			StartPosition: i * 100,
			EndPosition:   i*100 + len(content),
			Metadata:      core.ChunkMetadata{Type: core.ChunkTypeText},
		}
	}
	return chunks
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *queue.MemoryQueue) {
	t.Helper()
	q := queue.NewMemoryQueue()
	s, err := New(q, opts...)
	require.NoError(t, err)
	seq := 0
	s.newID = func() string {
		seq++
		return fmt.Sprintf("task-%d", seq)
	}
	return s, q
}

func TestEstimateTime(t *testing.T) {
	s, _ := newTestScheduler(t)

	assert.Equal(t, time.Duration(0), s.EstimateTime(0, 10))
	assert.Equal(t, 3*time.Second, s.EstimateTime(10, 10))
	assert.Equal(t, 30*time.Second, s.EstimateTime(100, 10))
	assert.Equal(t, 3750*time.Millisecond, s.EstimateTime(11, 10))
	// A zero batch size counts every chunk as its own batch.
	assert.Equal(t, 750*time.Millisecond, s.EstimateTime(1, 0))
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(queue.NewMemoryQueue(), WithLogger(nil))
	assert.Error(t, err)

	_, err = New(queue.NewMemoryQueue(), WithExecutionBudget(3*time.Second, 3*time.Second))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	s, err := New(queue.NewMemoryQueue(), WithExecutionBudget(10*time.Second, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, s.Config().Budget())
}

func TestScheduleTask_FitsBudget(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)

	res, err := s.ScheduleTask(ctx, Request{FileName: "notes.md", FileType: "markdown", Chunks: makeChunks(20)})
	require.NoError(t, err)

	assert.False(t, res.WasSplit)
	assert.Empty(t, res.SubTaskIDs)
	assert.Equal(t, core.StatusPending, res.Status)
	assert.Equal(t, 6*time.Second, res.EstimatedTime)

	task, err := q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.PriorityNormal, task.Priority)
	assert.Equal(t, 10, task.Options.BatchSize)
	assert.Equal(t, 3, task.Options.MaxRetries)
	assert.Equal(t, 23*time.Second, task.Options.Timeout)
	assert.Len(t, task.Chunks, 20)
	assert.Equal(t, 1, q.Len())
}

func TestScheduleTask_RequestOverrides(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	urgent := core.PriorityUrgent
	retries := 1

	res, err := s.ScheduleTask(ctx, Request{
		FileName:   "a.txt",
		Chunks:     makeChunks(2),
		Priority:   &urgent,
		BatchSize:  5,
		MaxRetries: &retries,
		Timeout:    5 * time.Second,
		UserID:     "user-1",
		Source:     "docs/a.txt",
	})
	require.NoError(t, err)

	task, err := q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.PriorityUrgent, task.Priority)
	assert.Equal(t, core.TaskOptions{BatchSize: 5, MaxRetries: 1, Timeout: 5 * time.Second}, task.Options)
	assert.Equal(t, "user-1", task.Metadata.UserID)
	assert.Equal(t, "docs/a.txt", task.Metadata.Source)
}

func TestScheduleTask_ZeroRetries(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	none := 0

	res, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1), MaxRetries: &none})
	require.NoError(t, err)
	task, err := q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, 0, task.Options.MaxRetries)

	res, err = s.ScheduleTask(ctx, Request{FileName: "b.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)
	task, err = q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, s.Config().DefaultMaxRetries, task.Options.MaxRetries)
}

func TestScheduleTask_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)

	_, err := s.ScheduleTask(ctx, Request{FileName: "empty.txt"})
	assert.ErrorIs(t, err, core.ErrEmptyChunks)

	bad := core.Priority(9)
	_, err = s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1), Priority: &bad})
	assert.ErrorIs(t, err, core.ErrInvalidPriority)

	_, err = s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1), BatchSize: -1})
	assert.ErrorIs(t, err, core.ErrInvalidOptions)

	assert.Equal(t, 0, q.Len())
}

func TestScheduleTask_Split(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	chunks := makeChunks(100)

	res, err := s.ScheduleTask(ctx, Request{FileName: "big.txt", Chunks: chunks})
	require.NoError(t, err)

	assert.True(t, res.WasSplit)
	assert.Equal(t, 30*time.Second, res.EstimatedTime)
	assert.Equal(t, []string{"task-1-part-1", "task-1-part-2"}, res.SubTaskIDs)

	parent, err := q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.True(t, parent.IsParent())
	assert.Empty(t, parent.Chunks)
	assert.Equal(t, res.SubTaskIDs, parent.Metadata.SubTaskIDs)

	var got []core.TextChunk
	for i, id := range res.SubTaskIDs {
		child, err := q.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, parent.ID, child.Metadata.ParentTaskID)
		assert.Equal(t, i+1, child.Metadata.PartNumber)
		assert.Equal(t, 2, child.Metadata.TotalParts)
		assert.Equal(t, parent.Options, child.Options)
		assert.Equal(t, parent.Priority, child.Priority)
		assert.LessOrEqual(t, s.EstimateTime(len(child.Chunks), child.Options.BatchSize), s.Config().Budget())
		got = append(got, child.Chunks...)
	}
	assert.Equal(t, chunks, got)

	// Only the sub-tasks are runnable.
	assert.Equal(t, 2, q.Len())
	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task-1-part-1", first.ID)
	assert.Len(t, first.Chunks, 76)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Len(t, second.Chunks, 24)
	assert.Equal(t, 76, second.Chunks[0].Index)
}

func TestSplitTask_Partition(t *testing.T) {
	s, _ := newTestScheduler(t, WithExecutionBudget(5*time.Second, time.Second))

	for _, n := range []int{1, 7, 13, 50, 333} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			task, err := s.NewTask(Request{FileName: "f", Chunks: makeChunks(n), BatchSize: 4})
			require.NoError(t, err)

			parent, children := s.SplitTask(task)
			require.Len(t, parent.Metadata.SubTaskIDs, len(children))

			seen := make(map[int]bool, n)
			for _, child := range children {
				assert.LessOrEqual(t, s.EstimateTime(len(child.Chunks), 4), s.Config().Budget())
				assert.Equal(t, len(children), child.Metadata.TotalParts)
				for _, c := range child.Chunks {
					assert.False(t, seen[c.Index], "chunk %d duplicated", c.Index)
					seen[c.Index] = true
				}
			}
			assert.Len(t, seen, n)
		})
	}
}

func TestGroupSize(t *testing.T) {
	s, _ := newTestScheduler(t)
	assert.Equal(t, 76, s.GroupSize(100, 10))
	assert.Equal(t, 5, s.GroupSize(5, 10))

	tight, _ := newTestScheduler(t, WithExecutionBudget(1100*time.Millisecond, time.Second))
	assert.Equal(t, 1, tight.GroupSize(10, 10))
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []core.TaskStatus
		want     core.TaskStatus
	}{
		{"none", nil, core.StatusPending},
		{"all completed", []core.TaskStatus{core.StatusCompleted, core.StatusCompleted}, core.StatusCompleted},
		{"any failed", []core.TaskStatus{core.StatusCompleted, core.StatusFailed, core.StatusProcessing}, core.StatusFailed},
		{"any processing", []core.TaskStatus{core.StatusCompleted, core.StatusProcessing, core.StatusPending}, core.StatusProcessing},
		{"all cancelled", []core.TaskStatus{core.StatusCancelled, core.StatusCancelled}, core.StatusCancelled},
		{"mixed", []core.TaskStatus{core.StatusCompleted, core.StatusPending}, core.StatusPending},
		{"cancelled and completed", []core.TaskStatus{core.StatusCancelled, core.StatusCompleted}, core.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.statuses))
		})
	}
}

func scheduleSplit(t *testing.T, s *Scheduler) *ScheduleResult {
	t.Helper()
	res, err := s.ScheduleTask(context.Background(), Request{FileName: "big.txt", Chunks: makeChunks(100)})
	require.NoError(t, err)
	require.True(t, res.WasSplit)
	return res
}

func TestGetTaskStatus_Parent(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	res := scheduleSplit(t, s)

	report, err := s.GetTaskStatus(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.True(t, report.IsParent)
	assert.Equal(t, core.StatusPending, report.Status)
	require.Len(t, report.SubTasks, 2)
	assert.Nil(t, report.StartedAt)

	first, second := res.SubTaskIDs[0], res.SubTaskIDs[1]
	require.NoError(t, q.UpdateTaskStatus(ctx, first, core.StatusUpdate{Status: core.StatusProcessing, Progress: 40}))
	report, err = s.GetTaskStatus(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, report.Status)
	assert.Equal(t, 20, report.Progress)
	assert.NotNil(t, report.StartedAt)

	require.NoError(t, q.UpdateTaskStatus(ctx, first, core.StatusUpdate{Status: core.StatusCompleted, Progress: 100}))
	require.NoError(t, q.UpdateTaskStatus(ctx, second, core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, second, core.StatusUpdate{Status: core.StatusFailed, Progress: 50, Error: "all embeddings failed"}))
	report, err = s.GetTaskStatus(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, report.Status)
	assert.Equal(t, 75, report.Progress)
	assert.Equal(t, "part 2: all embeddings failed", report.Error)
	assert.NotNil(t, report.CompletedAt)
}

func TestGetTaskStatus_SingleAndMissing(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestScheduler(t)

	res, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(3)})
	require.NoError(t, err)
	report, err := s.GetTaskStatus(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.False(t, report.IsParent)
	assert.Equal(t, "a.txt", report.FileName)
	assert.Equal(t, core.StatusPending, report.Status)

	_, err = s.GetTaskStatus(ctx, "nope")
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
}

func TestGetTaskStatus_SkipsRemovedChildren(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	res := scheduleSplit(t, s)

	require.NoError(t, q.UpdateTaskStatus(ctx, res.SubTaskIDs[0], core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, res.SubTaskIDs[0], core.StatusUpdate{Status: core.StatusCompleted, Progress: 100}))
	require.NoError(t, q.RemoveTask(ctx, res.SubTaskIDs[1]))

	report, err := s.GetTaskStatus(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Len(t, report.SubTasks, 1)
	assert.Equal(t, core.StatusCompleted, report.Status)
	assert.Equal(t, 100, report.Progress)
}

func TestSyncParent(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	res := scheduleSplit(t, s)

	for _, id := range res.SubTaskIDs {
		require.NoError(t, q.UpdateTaskStatus(ctx, id, core.StatusUpdate{Status: core.StatusProcessing}))
		require.NoError(t, q.UpdateTaskStatus(ctx, id, core.StatusUpdate{Status: core.StatusCompleted, Progress: 100}))
	}
	report, err := s.SyncParent(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, report.Status)

	parent, err := q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, parent.Status)
	assert.Equal(t, 100, parent.Progress)
	assert.NotNil(t, parent.CompletedAt)
	assert.Equal(t, 0, q.Len())
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()

	t.Run("pending", func(t *testing.T) {
		s, q := newTestScheduler(t)
		res, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(3)})
		require.NoError(t, err)

		require.NoError(t, s.CancelTask(ctx, res.MainTaskID))
		task, err := q.GetTask(ctx, res.MainTaskID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusCancelled, task.Status)
		assert.Equal(t, 0, q.Len())

		assert.ErrorIs(t, s.CancelTask(ctx, res.MainTaskID), ErrTaskTerminal)
	})

	t.Run("running is forwarded", func(t *testing.T) {
		c := &fakeCanceller{running: map[string]bool{"task-1": true}}
		s, q := newTestScheduler(t, WithCanceller(c))
		res, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(3)})
		require.NoError(t, err)
		_, err = q.Dequeue(ctx)
		require.NoError(t, err)
		require.NoError(t, q.UpdateTaskStatus(ctx, res.MainTaskID, core.StatusUpdate{Status: core.StatusProcessing}))

		require.NoError(t, s.CancelTask(ctx, res.MainTaskID))
		assert.Equal(t, []string{"task-1"}, c.calls)
		task, err := q.GetTask(ctx, res.MainTaskID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusProcessing, task.Status, "the processor owns the final status")
	})

	t.Run("processing but not running here", func(t *testing.T) {
		c := &fakeCanceller{}
		s, q := newTestScheduler(t, WithCanceller(c))
		res, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(3)})
		require.NoError(t, err)
		require.NoError(t, q.UpdateTaskStatus(ctx, res.MainTaskID, core.StatusUpdate{Status: core.StatusProcessing}))

		require.NoError(t, s.CancelTask(ctx, res.MainTaskID))
		task, err := q.GetTask(ctx, res.MainTaskID)
		require.NoError(t, err)
		assert.Equal(t, core.StatusCancelled, task.Status)
	})

	t.Run("parent cascades", func(t *testing.T) {
		s, q := newTestScheduler(t)
		res := scheduleSplit(t, s)
		first := res.SubTaskIDs[0]
		require.NoError(t, q.UpdateTaskStatus(ctx, first, core.StatusUpdate{Status: core.StatusProcessing}))
		require.NoError(t, q.UpdateTaskStatus(ctx, first, core.StatusUpdate{Status: core.StatusCompleted, Progress: 100}))

		require.NoError(t, s.CancelTask(ctx, res.MainTaskID))

		done, err := q.GetTask(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, core.StatusCompleted, done.Status)
		rest, err := q.GetTask(ctx, res.SubTaskIDs[1])
		require.NoError(t, err)
		assert.Equal(t, core.StatusCancelled, rest.Status)
		assert.Equal(t, 0, q.Len())
	})

	t.Run("missing", func(t *testing.T) {
		s, _ := newTestScheduler(t)
		assert.ErrorIs(t, s.CancelTask(ctx, "nope"), queue.ErrTaskNotFound)
	})
}

func TestSetTaskPriority(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)

	a, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)
	b, err := s.ScheduleTask(ctx, Request{FileName: "b.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)

	require.NoError(t, s.SetTaskPriority(ctx, b.MainTaskID, core.PriorityHigh))
	next, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.MainTaskID, next.ID)
	assert.Equal(t, core.PriorityHigh, next.Priority)

	assert.ErrorIs(t, s.SetTaskPriority(ctx, a.MainTaskID, core.Priority(-1)), core.ErrInvalidPriority)

	// A task that is not pending keeps its status.
	require.NoError(t, q.UpdateTaskStatus(ctx, b.MainTaskID, core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, s.SetTaskPriority(ctx, b.MainTaskID, core.PriorityLow))
	task, err := q.GetTask(ctx, b.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, task.Status)
	assert.Equal(t, core.PriorityLow, task.Priority)
	assert.Equal(t, 1, q.Len())
}

func TestSetTaskPriority_Parent(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	single, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)
	res := scheduleSplit(t, s)

	require.NoError(t, s.SetTaskPriority(ctx, res.MainTaskID, core.PriorityUrgent))

	parent, err := q.GetTask(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.PriorityUrgent, parent.Priority)

	var order []string
	for {
		task, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if task == nil {
			break
		}
		order = append(order, task.ID)
	}
	assert.Equal(t, append(res.SubTaskIDs, single.MainTaskID), order)
}

func TestRetryTask(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)

	res, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)
	assert.ErrorIs(t, s.RetryTask(ctx, res.MainTaskID), ErrNotRetryable)

	_, err = q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.UpdateTaskStatus(ctx, res.MainTaskID, core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, res.MainTaskID, core.StatusUpdate{Status: core.StatusFailed, Error: "boom"}))

	require.NoError(t, s.RetryTask(ctx, res.MainTaskID))
	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, core.StatusPending, task.Status)
	assert.Empty(t, task.Error)
	assert.Nil(t, task.CompletedAt)
}

func TestRetryTask_Parent(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)
	res := scheduleSplit(t, s)
	assert.ErrorIs(t, s.RetryTask(ctx, res.MainTaskID), ErrNotRetryable)

	for {
		task, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if task == nil {
			break
		}
	}
	first, second := res.SubTaskIDs[0], res.SubTaskIDs[1]
	require.NoError(t, q.UpdateTaskStatus(ctx, first, core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, first, core.StatusUpdate{Status: core.StatusCompleted, Progress: 100}))
	require.NoError(t, q.UpdateTaskStatus(ctx, second, core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, second, core.StatusUpdate{Status: core.StatusFailed, Error: "boom"}))

	require.NoError(t, s.RetryTask(ctx, res.MainTaskID))
	assert.Equal(t, 1, q.Len())
	report, err := s.GetTaskStatus(ctx, res.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, report.Status)
	assert.Equal(t, 50, report.Progress)
}

func finish(t *testing.T, q queue.Provider, id string, status core.TaskStatus) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, q.UpdateTaskStatus(ctx, id, core.StatusUpdate{Status: core.StatusProcessing}))
	require.NoError(t, q.UpdateTaskStatus(ctx, id, core.StatusUpdate{Status: status, Progress: 100}))
}

func TestCleanupOldTasks(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)

	done, err := s.ScheduleTask(ctx, Request{FileName: "done.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)
	finish(t, q, done.MainTaskID, core.StatusCompleted)

	waiting, err := s.ScheduleTask(ctx, Request{FileName: "waiting.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)

	split := scheduleSplit(t, s)
	finish(t, q, split.SubTaskIDs[0], core.StatusCompleted)

	// Nothing is old enough yet.
	removed, err := s.CleanupOldTasks(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	// The parent still has a pending part, so the family is kept.
	removed, err = s.CleanupOldTasks(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = q.GetTask(ctx, done.MainTaskID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	_, err = q.GetTask(ctx, waiting.MainTaskID)
	assert.NoError(t, err)
	_, err = q.GetTask(ctx, split.SubTaskIDs[0])
	assert.NoError(t, err)

	s.now = time.Now
	finish(t, q, split.SubTaskIDs[1], core.StatusFailed)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	removed, err = s.CleanupOldTasks(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	_, err = q.GetTask(ctx, split.MainTaskID)
	assert.ErrorIs(t, err, queue.ErrTaskNotFound)

	_, err = s.CleanupOldTasks(ctx, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGetQueueStats(t *testing.T) {
	ctx := context.Background()
	s, q := newTestScheduler(t)

	single, err := s.ScheduleTask(ctx, Request{FileName: "a.txt", Chunks: makeChunks(1)})
	require.NoError(t, err)
	finish(t, q, single.MainTaskID, core.StatusFailed)
	split := scheduleSplit(t, s)
	require.NoError(t, q.UpdateTaskStatus(ctx, split.SubTaskIDs[0], core.StatusUpdate{Status: core.StatusProcessing}))

	stats, err := s.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &QueueStats{Total: 3, Pending: 1, Processing: 1, Failed: 1, Parents: 1}, stats)
}
