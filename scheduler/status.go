package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
)

// SubTaskStatus is the state of one part of a split task.
type SubTaskStatus struct {
	ID         string
	PartNumber int
	Status     core.TaskStatus
	Progress   int
	Error      string
}

// StatusReport is the logical status of a task. For a parent task, Status,
// Progress and Error are aggregated from its sub-tasks.
type StatusReport struct {
	ID          string
	FileName    string
	Status      core.TaskStatus
	Progress    int
	Error       string
	IsParent    bool
	SubTasks    []SubTaskStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Continuation is the task carrying the chunks this one did not reach.
	Continuation string
}

// Aggregate folds sub-task statuses into one: all completed is completed,
// any failed is failed, any processing is processing, all cancelled is
// cancelled, and anything else is pending.
func Aggregate(statuses []core.TaskStatus) core.TaskStatus {
	if len(statuses) == 0 {
		return core.StatusPending
	}
	counts := make(map[core.TaskStatus]int, len(core.AllStatuses))
	for _, st := range statuses {
		counts[st]++
	}
	switch {
	case counts[core.StatusCompleted] == len(statuses):
		return core.StatusCompleted
	case counts[core.StatusFailed] > 0:
		return core.StatusFailed
	case counts[core.StatusProcessing] > 0:
		return core.StatusProcessing
	case counts[core.StatusCancelled] == len(statuses):
		return core.StatusCancelled
	default:
		return core.StatusPending
	}
}

// GetTaskStatus returns the logical status of a task. A task that left
// chunks to a continuation is reported together with its continuations.
func (s *Scheduler) GetTaskStatus(ctx context.Context, id string) (*StatusReport, error) {
	task, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, task)
}

func (s *Scheduler) status(ctx context.Context, task *core.ProcessingTask) (*StatusReport, error) {
	report := &StatusReport{
		ID:          task.ID,
		FileName:    task.FileName,
		Status:      task.Status,
		Progress:    task.Progress,
		Error:       task.Error,
		IsParent:    task.IsParent(),
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}
	if !task.IsParent() {
		return s.followContinuation(ctx, task, report)
	}

	children, err := s.children(ctx, task)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return report, nil
	}

	statuses := make([]core.TaskStatus, len(children))
	var (
		progress int
		failures []string
		started  *time.Time
		finished *time.Time
	)
	for i, child := range children {
		statuses[i] = child.Status
		progress += child.Progress
		report.SubTasks = append(report.SubTasks, SubTaskStatus{
			ID:         child.ID,
			PartNumber: child.Metadata.PartNumber,
			Status:     child.Status,
			Progress:   child.Progress,
			Error:      child.Error,
		})
		if child.Status == core.StatusFailed {
			failures = append(failures, fmt.Sprintf("part %d: %s", child.Metadata.PartNumber, child.Error))
		}
		if child.StartedAt != nil && (started == nil || child.StartedAt.Before(*started)) {
			started = child.StartedAt
		}
		if child.CompletedAt != nil && (finished == nil || child.CompletedAt.After(*finished)) {
			finished = child.CompletedAt
		}
	}

	report.Status = Aggregate(statuses)
	report.Progress = progress / len(children)
	report.Error = strings.Join(failures, "; ")
	report.StartedAt = started
	report.CompletedAt = nil
	if report.Status.IsTerminal() {
		report.CompletedAt = finished
	}
	return report, nil
}

// followContinuation folds the continuation chain of task into report.
// Progress is weighted by the chunks each task carries.
func (s *Scheduler) followContinuation(ctx context.Context, task *core.ProcessingTask, report *StatusReport) (*StatusReport, error) {
	id := task.Metadata.ContinuedBy
	if id == "" {
		return report, nil
	}
	cont, err := s.queue.GetTask(ctx, id)
	if errors.Is(err, queue.ErrTaskNotFound) {
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	next, err := s.status(ctx, cont)
	if err != nil {
		return nil, err
	}

	report.Continuation = cont.ID
	report.Status = Aggregate([]core.TaskStatus{task.Status, next.Status})
	if total := len(task.Chunks); total > 0 {
		rest := min(len(cont.Chunks), total)
		report.Progress = (task.Progress*(total-rest) + next.Progress*rest) / total
	}
	switch {
	case next.Error == "":
	case report.Error == "":
		report.Error = next.Error
	default:
		report.Error += "; " + next.Error
	}
	report.CompletedAt = nil
	if report.Status.IsTerminal() {
		report.CompletedAt = next.CompletedAt
	}
	return report, nil
}

// children loads the sub-tasks of a parent in part order, skipping any that
// were removed.
func (s *Scheduler) children(ctx context.Context, parent *core.ProcessingTask) ([]*core.ProcessingTask, error) {
	children := make([]*core.ProcessingTask, 0, len(parent.Metadata.SubTaskIDs))
	for _, id := range parent.Metadata.SubTaskIDs {
		child, err := s.queue.GetTask(ctx, id)
		if errors.Is(err, queue.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// SyncParent writes the aggregated status of a parent onto its record so
// that listing and cleanup see the parent's logical state. Tasks that are
// not parents are returned unchanged.
func (s *Scheduler) SyncParent(ctx context.Context, id string) (*StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.GetTaskStatus(ctx, id)
	if err != nil || !report.IsParent {
		return report, err
	}
	parent, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	parent.Status = report.Status
	parent.Progress = report.Progress
	parent.Error = report.Error
	parent.StartedAt = report.StartedAt
	parent.CompletedAt = report.CompletedAt
	if err := s.queue.Save(ctx, parent); err != nil {
		return nil, fmt.Errorf("failed to save parent %s: %w", id, err)
	}
	return report, nil
}

// CancelTask cancels a task, or every live sub-task of a parent.
// Cancelling a finished task returns ErrTaskTerminal.
func (s *Scheduler) CancelTask(ctx context.Context, id string) error {
	task, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !task.IsParent() {
		if task.Status.IsTerminal() {
			if next := task.Metadata.ContinuedBy; next != "" {
				return s.CancelTask(ctx, next)
			}
			return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, id, task.Status)
		}
		return s.cancelOne(ctx, task)
	}

	children, err := s.children(ctx, task)
	if err != nil {
		return err
	}
	var errs []error
	for _, child := range children {
		if child.Status.IsTerminal() {
			continue
		}
		if err := s.cancelOne(ctx, child); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	_, err = s.SyncParent(ctx, id)
	return err
}

func (s *Scheduler) cancelOne(ctx context.Context, task *core.ProcessingTask) error {
	if task.Status == core.StatusProcessing && s.canceller != nil && s.canceller.CancelTask(task.ID) {
		s.logger.Info("cancellation forwarded to running task", "task", task.ID)
		return nil
	}
	err := s.queue.UpdateTaskStatus(ctx, task.ID, core.StatusUpdate{
		Status:   core.StatusCancelled,
		Progress: task.Progress,
		Error:    "cancelled",
	})
	if err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", task.ID, err)
	}
	s.logger.Info("task cancelled", "task", task.ID)
	return nil
}

// SetTaskPriority changes a task's priority; for a parent, every sub-task
// changes too. Pending tasks move to the back of their new priority class.
func (s *Scheduler) SetTaskPriority(ctx context.Context, id string, p core.Priority) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", core.ErrInvalidPriority, p)
	}
	task, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.IsParent() {
		for _, childID := range task.Metadata.SubTaskIDs {
			child, err := s.queue.GetTask(ctx, childID)
			if errors.Is(err, queue.ErrTaskNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := s.reprioritize(ctx, child, p); err != nil {
				return err
			}
		}
	}
	return s.reprioritize(ctx, task, p)
}

func (s *Scheduler) reprioritize(ctx context.Context, task *core.ProcessingTask, p core.Priority) error {
	task.Priority = p
	if queue.Runnable(task) {
		return s.queue.Enqueue(ctx, task)
	}
	return s.queue.Save(ctx, task)
}

// RetryTask returns a failed task to the queue. For a parent, every failed
// sub-task is retried. Returns ErrNotRetryable when nothing has failed.
func (s *Scheduler) RetryTask(ctx context.Context, id string) error {
	task, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !task.IsParent() {
		if task.Status != core.StatusFailed {
			if next := task.Metadata.ContinuedBy; next != "" {
				return s.RetryTask(ctx, next)
			}
			return fmt.Errorf("%w: %s is %s", ErrNotRetryable, id, task.Status)
		}
		return s.retryOne(ctx, task.ID)
	}

	children, err := s.children(ctx, task)
	if err != nil {
		return err
	}
	retried := 0
	for _, child := range children {
		if child.Status != core.StatusFailed {
			continue
		}
		if err := s.retryOne(ctx, child.ID); err != nil {
			return err
		}
		retried++
	}
	if retried == 0 {
		return fmt.Errorf("%w: no failed sub-tasks in %s", ErrNotRetryable, id)
	}
	_, err = s.SyncParent(ctx, id)
	return err
}

func (s *Scheduler) retryOne(ctx context.Context, id string) error {
	if err := s.queue.UpdateTaskStatus(ctx, id, core.StatusUpdate{Status: core.StatusPending}); err != nil {
		return fmt.Errorf("failed to retry task %s: %w", id, err)
	}
	s.logger.Info("task requeued for retry", "task", id)
	return nil
}
