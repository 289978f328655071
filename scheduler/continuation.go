package scheduler

import (
	"context"
	"fmt"

	"github.com/poiesic/vectorit/core"
)

// ScheduleContinuation queues the chunks task did not reach as a new task
// with the same options. The continuation of a sub-task joins the same
// parent as an extra part, so the parent's SubTaskIDs stays the complete
// list of its work. Any other task records the continuation in ContinuedBy
// and GetTaskStatus reports the two together.
func (s *Scheduler) ScheduleContinuation(ctx context.Context, task *core.ProcessingTask, rest []core.TextChunk) (*core.ProcessingTask, error) {
	priority := task.Priority
	retries := task.Options.MaxRetries
	cont, err := s.NewTask(Request{
		FileName:   task.FileName,
		FileType:   task.FileType,
		FileSize:   task.FileSize,
		Chunks:     rest,
		Priority:   &priority,
		BatchSize:  task.Options.BatchSize,
		MaxRetries: &retries,
		Timeout:    task.Options.Timeout,
		UserID:     task.Metadata.UserID,
		Source:     task.Metadata.Source,
	})
	if err != nil {
		return nil, err
	}
	cont.Metadata.ContinuationOf = task.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	// The link is written before the continuation is queued. Status queries
	// skip a linked ID that does not exist yet.
	if parentID := task.Metadata.ParentTaskID; parentID != "" {
		err = s.addPart(ctx, parentID, cont)
	} else {
		err = s.linkContinuation(ctx, task.ID, cont)
	}
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, cont); err != nil {
		return nil, fmt.Errorf("failed to enqueue continuation of %s: %w", task.ID, err)
	}

	s.logger.Info("continuation scheduled",
		"task", task.ID, "continuation", cont.ID, "parent", cont.Metadata.ParentTaskID, "chunks", len(rest))
	return cont, nil
}

func (s *Scheduler) addPart(ctx context.Context, parentID string, cont *core.ProcessingTask) error {
	parent, err := s.queue.GetTask(ctx, parentID)
	if err != nil {
		return fmt.Errorf("failed to load parent %s: %w", parentID, err)
	}
	part := len(parent.Metadata.SubTaskIDs) + 1
	cont.Metadata.ParentTaskID = parentID
	cont.Metadata.PartNumber = part
	cont.Metadata.TotalParts = part

	parent.Metadata.SubTaskIDs = append(parent.Metadata.SubTaskIDs, cont.ID)
	if err := s.queue.Save(ctx, parent); err != nil {
		return fmt.Errorf("failed to save parent %s: %w", parentID, err)
	}
	return nil
}

func (s *Scheduler) linkContinuation(ctx context.Context, id string, cont *core.ProcessingTask) error {
	orig, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}
	orig.Metadata.ContinuedBy = cont.ID
	if err := s.queue.Save(ctx, orig); err != nil {
		return fmt.Errorf("failed to save task %s: %w", id, err)
	}
	return nil
}
