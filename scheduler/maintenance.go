package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
)

// QueueStats counts tasks by status. Parent records are counted separately
// and excluded from the per-status counts.
type QueueStats struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
	Parents    int
}

// GetQueueStats counts the tasks in the queue.
func (s *Scheduler) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	tasks, err := s.queue.GetAllTasks(ctx)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{}
	for _, task := range tasks {
		if task.IsParent() {
			stats.Parents++
			continue
		}
		stats.Total++
		switch task.Status {
		case core.StatusPending:
			stats.Pending++
		case core.StatusProcessing:
			stats.Processing++
		case core.StatusCompleted:
			stats.Completed++
		case core.StatusFailed:
			stats.Failed++
		case core.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// CleanupOldTasks removes finished tasks that ended more than maxAge ago and
// returns how many records were removed. A parent is removed together with
// its sub-tasks once every sub-task qualifies; sub-tasks of a parent that
// does not qualify are kept.
func (s *Scheduler) CleanupOldTasks(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		return 0, fmt.Errorf("%w: negative max age %s", ErrInvalidConfig, maxAge)
	}
	tasks, err := s.queue.GetAllTasks(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-maxAge)

	byID := make(map[string]*core.ProcessingTask, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	expired := func(task *core.ProcessingTask) bool {
		if !task.Status.IsTerminal() {
			return false
		}
		ended := task.CreatedAt
		if task.CompletedAt != nil {
			ended = *task.CompletedAt
		}
		return ended.Before(cutoff)
	}

	var remove []string
	for _, task := range tasks {
		switch {
		case task.IsParent():
			ok := true
			for _, id := range task.Metadata.SubTaskIDs {
				if child, found := byID[id]; found && !expired(child) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			for _, id := range task.Metadata.SubTaskIDs {
				if _, found := byID[id]; found {
					remove = append(remove, id)
				}
			}
			remove = append(remove, task.ID)
		case task.Metadata.ParentTaskID != "":
			if _, found := byID[task.Metadata.ParentTaskID]; !found && expired(task) {
				remove = append(remove, task.ID)
			}
		case expired(task):
			remove = append(remove, task.ID)
		}
	}

	removed := 0
	for _, id := range remove {
		err := s.queue.RemoveTask(ctx, id)
		if errors.Is(err, queue.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to remove task %s: %w", id, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("old tasks removed", "count", removed, "max_age", maxAge)
	}
	return removed, nil
}
