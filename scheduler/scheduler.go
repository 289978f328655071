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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/queue"
)

// Canceller stops a task that is currently executing. It reports false when
// the task is not running, in which case the scheduler writes the cancelled
// status itself.
type Canceller interface {
	CancelTask(id string) bool
}

// Request describes a document to schedule. Zero values and nil pointers
// select defaults.
type Request struct {
	FileName string
	FileType string
	FileSize int64
	Chunks   []core.TextChunk

	Priority   *core.Priority
	BatchSize  int
	MaxRetries *int
	Timeout    time.Duration

	UserID string
	Source string
}

// ScheduleResult reports how a document was queued.
type ScheduleResult struct {
	MainTaskID    string
	SubTaskIDs    []string
	WasSplit      bool
	EstimatedTime time.Duration
	Status        core.TaskStatus
}

// Scheduler turns documents into queued tasks and manages them afterwards.
type Scheduler struct {
	queue     queue.Provider
	cfg       Config
	canceller Canceller
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	// mu serializes read-modify-write cycles on parent and linked records.
	mu sync.Mutex
}

// New creates a scheduler that stores tasks in q.
func New(q queue.Provider, opts ...Option) (*Scheduler, error) {
	if q == nil {
		return nil, errors.New("queue cannot be nil")
	}
	s := &Scheduler{
		queue:  q,
		cfg:    DefaultConfig(),
		logger: slog.Default().With("component", "scheduler"),
		now:    time.Now,
		newID:  core.NewTaskID,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// EstimateTime predicts how long chunkCount chunks take at batchSize.
func (s *Scheduler) EstimateTime(chunkCount, batchSize int) time.Duration {
	if chunkCount <= 0 {
		return 0
	}
	batchSize = max(1, batchSize)
	batches := (chunkCount + batchSize - 1) / batchSize
	return time.Duration(chunkCount)*s.cfg.PerChunkCost + time.Duration(batches)*s.cfg.BatchOverhead
}

// NewTask builds a pending task from req, applying defaults.
func (s *Scheduler) NewTask(req Request) (*core.ProcessingTask, error) {
	if err := core.ValidateChunks(req.Chunks); err != nil {
		return nil, err
	}
	opts := core.TaskOptions{
		BatchSize:  req.BatchSize,
		MaxRetries: s.cfg.DefaultMaxRetries,
		Timeout:    req.Timeout,
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = s.cfg.DefaultBatchSize
	}
	if req.MaxRetries != nil {
		opts.MaxRetries = *req.MaxRetries
	}
	if opts.Timeout == 0 {
		opts.Timeout = s.cfg.Budget()
	}
	if err := core.ValidateOptions(opts); err != nil {
		return nil, err
	}
	priority := s.cfg.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	task := &core.ProcessingTask{
		ID:        s.newID(),
		FileName:  req.FileName,
		FileType:  req.FileType,
		FileSize:  req.FileSize,
		Chunks:    req.Chunks,
		Status:    core.StatusPending,
		Priority:  priority,
		CreatedAt: s.now().UTC(),
		Options:   opts,
		Metadata: core.TaskMetadata{
			UserID: req.UserID,
			Source: req.Source,
		},
	}
	if err := core.ValidateTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// ScheduleTask queues a document. A document whose estimate exceeds the
// budget is split into sub-tasks; only the sub-tasks are runnable and the
// original is kept as their parent record.
func (s *Scheduler) ScheduleTask(ctx context.Context, req Request) (*ScheduleResult, error) {
	task, err := s.NewTask(req)
	if err != nil {
		return nil, err
	}

	estimate := s.EstimateTime(len(task.Chunks), task.Options.BatchSize)
	result := &ScheduleResult{
		MainTaskID:    task.ID,
		EstimatedTime: estimate,
		Status:        core.StatusPending,
	}

	if estimate <= s.cfg.Budget() {
		if err := s.queue.Enqueue(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to enqueue task %s: %w", task.ID, err)
		}
		s.logger.Info("task scheduled",
			"task", task.ID, "file", task.FileName, "chunks", len(task.Chunks), "estimate", estimate)
		return result, nil
	}

	parent, children := s.SplitTask(task)
	if err := s.queue.Save(ctx, parent); err != nil {
		return nil, fmt.Errorf("failed to save parent task %s: %w", parent.ID, err)
	}
	for i, child := range children {
		if err := s.queue.Enqueue(ctx, child); err != nil {
			s.rollback(ctx, parent.ID, children[:i])
			return nil, fmt.Errorf("failed to enqueue sub-task %s: %w", child.ID, err)
		}
	}

	result.WasSplit = true
	result.SubTaskIDs = parent.Metadata.SubTaskIDs
	s.logger.Info("task split",
		"task", parent.ID, "file", parent.FileName, "chunks", len(task.Chunks),
		"parts", len(children), "estimate", estimate, "budget", s.cfg.Budget())
	return result, nil
}

func (s *Scheduler) rollback(ctx context.Context, parentID string, enqueued []*core.ProcessingTask) {
	for _, child := range enqueued {
		if err := s.queue.RemoveTask(ctx, child.ID); err != nil {
			s.logger.Warn("failed to remove sub-task during rollback", "task", child.ID, "err", err)
		}
	}
	if err := s.queue.RemoveTask(ctx, parentID); err != nil {
		s.logger.Warn("failed to remove parent during rollback", "task", parentID, "err", err)
	}
}

// GroupSize returns the largest chunk count whose estimate fits the budget,
// and at least 1.
func (s *Scheduler) GroupSize(total, batchSize int) int {
	lo, hi := 1, total
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.EstimateTime(mid, batchSize) <= s.cfg.Budget() {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// SplitTask partitions task into sub-tasks that each fit the budget. It
// returns the parent record (no chunks, SubTaskIDs set) and the sub-tasks in
// part order. Chunks keep their original indices, and concatenating the
// sub-task chunk lists yields the original list.
func (s *Scheduler) SplitTask(task *core.ProcessingTask) (*core.ProcessingTask, []*core.ProcessingTask) {
	size := s.GroupSize(len(task.Chunks), task.Options.BatchSize)
	if s.EstimateTime(size, task.Options.BatchSize) > s.cfg.Budget() {
		s.logger.Warn("a single chunk exceeds the budget", "task", task.ID, "budget", s.cfg.Budget())
	}
	parts := (len(task.Chunks) + size - 1) / size

	parent := task.Clone()
	parent.Chunks = nil
	parent.Metadata.IsParentTask = true
	parent.Metadata.SubTaskIDs = make([]string, 0, parts)

	children := make([]*core.ProcessingTask, 0, parts)
	for part := 1; part <= parts; part++ {
		from := (part - 1) * size
		to := min(from+size, len(task.Chunks))

		child := task.Clone()
		child.ID = fmt.Sprintf("%s-part-%d", task.ID, part)
		child.Chunks = task.Chunks[from:to:to]
		child.Metadata.ParentTaskID = task.ID
		child.Metadata.PartNumber = part
		child.Metadata.TotalParts = parts
		children = append(children, child)
		parent.Metadata.SubTaskIDs = append(parent.Metadata.SubTaskIDs, child.ID)
	}
	return parent, children
}
