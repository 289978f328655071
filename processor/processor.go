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

package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/embedding"
	"github.com/poiesic/vectorit/queue"
	"github.com/poiesic/vectorit/scheduler"
)

// Stats summarizes the tasks a processor has finished since it was created.
type Stats struct {
	CompletedTasks        int
	FailedTasks           int
	CancelledTasks        int
	ActiveTasks           int
	TotalProcessingTime   time.Duration
	AverageProcessingTime time.Duration
}

// Processor polls a queue and executes tasks on a bounded worker pool.
type Processor struct {
	queue         queue.Provider
	embedder      ai.Embedder
	cfg           Config
	embedCfg      embedding.Config
	observers     Observers
	meterProvider metric.MeterProvider
	metrics       *metrics
	logger        *slog.Logger
	now           func() time.Time

	mu        sync.Mutex
	running   bool
	pool      *ants.Pool
	stopLoop  context.CancelFunc
	stopTasks context.CancelCauseFunc
	loopDone  chan struct{}
	active    map[string]context.CancelCauseFunc
	inflight  sync.WaitGroup
	stats     Stats
}

var _ scheduler.Canceller = (*Processor)(nil)

// New creates a processor that takes tasks from q and embeds them with embedder.
func New(q queue.Provider, embedder ai.Embedder, opts ...Option) (*Processor, error) {
	if q == nil {
		return nil, errors.New("queue cannot be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder cannot be nil")
	}
	p := &Processor{
		queue:    q,
		embedder: embedder,
		cfg:      DefaultConfig(),
		embedCfg: embedding.DefaultConfig(),
		logger:   slog.Default().With("component", "processor"),
		now:      time.Now,
		active:   make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	if p.meterProvider == nil {
		p.meterProvider = otel.GetMeterProvider()
	}
	m, err := newMetrics(p.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	p.metrics = m
	return p, nil
}

// Config returns the effective configuration.
func (p *Processor) Config() Config {
	return p.cfg
}

// Start begins polling. Tasks run until they finish, Stop is called, or ctx
// is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}

	pool, err := ants.NewPool(p.cfg.MaxConcurrentTasks,
		ants.WithLogger(poolLogger{p.logger}),
		ants.WithPanicHandler(func(v any) {
			p.logger.Error("task execution panicked", "panic", v)
		}))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	taskCtx, stopTasks := context.WithCancelCause(ctx)
	loopCtx, stopLoop := context.WithCancel(taskCtx)
	p.pool = pool
	p.stopLoop = stopLoop
	p.stopTasks = stopTasks
	p.loopDone = make(chan struct{})
	p.running = true

	go p.loop(loopCtx, taskCtx, p.loopDone)
	p.logger.Info("processor started",
		"max_concurrent", p.cfg.MaxConcurrentTasks, "poll_interval", p.cfg.PollInterval, "timeout", p.cfg.TaskTimeout)
	return nil
}

// Stop halts polling and cancels every active task, writing its cancelled
// status immediately. It returns once all executions have ended.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopLoop, stopTasks, done, pool := p.stopLoop, p.stopTasks, p.loopDone, p.pool
	p.mu.Unlock()

	stopLoop()
	<-done

	p.mu.Lock()
	ids := slices.Collect(maps.Keys(p.active))
	p.mu.Unlock()
	for _, id := range ids {
		p.cancel(id, ErrStopped)
	}

	p.inflight.Wait()
	stopTasks(ErrStopped)
	pool.Release()
	p.logger.Info("processor stopped", "cancelled", len(ids))
}

// CancelTask cancels a task executing in this processor and marks it
// cancelled. It reports false when the task is not executing here.
func (p *Processor) CancelTask(id string) bool {
	return p.cancel(id, embedding.ErrCancelled)
}

func (p *Processor) cancel(id string, cause error) bool {
	p.mu.Lock()
	cancel, ok := p.active[id]
	p.mu.Unlock()
	if !ok {
		return false
	}

	cancel(cause)
	err := p.queue.UpdateTaskStatus(context.Background(), id, core.StatusUpdate{
		Status: core.StatusCancelled,
		Error:  "cancelled",
	})
	if err != nil && !errors.Is(err, core.ErrInvalidTransition) {
		p.logger.Error("failed to mark task cancelled", "task", id, "err", err)
	}
	p.logger.Info("task cancellation requested", "task", id)
	return true
}

// ActiveCount returns the number of tasks currently executing.
func (p *Processor) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Stats returns a snapshot of the running statistics.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.ActiveTasks = len(p.active)
	return s
}

// WaitIdle blocks until nothing is executing and no runnable task is
// pending. It only returns nil while the processor is running or the queue
// is already drained.
func (p *Processor) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(min(p.cfg.PollInterval, 50*time.Millisecond))
	defer ticker.Stop()
	for {
		idle, err := p.idle(ctx)
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Processor) idle(ctx context.Context) (bool, error) {
	if p.ActiveCount() > 0 {
		return false, nil
	}
	pending, err := p.queue.GetTasksByStatus(ctx, core.StatusPending)
	if err != nil {
		return false, err
	}
	for _, task := range pending {
		if !task.IsParent() {
			return false, nil
		}
	}
	return p.ActiveCount() == 0, nil
}

func (p *Processor) loop(ctx, taskCtx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.poll(ctx, taskCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, taskCtx)
		}
	}
}

// poll dequeues up to the number of free slots and launches each task.
func (p *Processor) poll(ctx, taskCtx context.Context) {
	slots := p.cfg.MaxConcurrentTasks - p.ActiveCount()
	for range slots {
		if ctx.Err() != nil {
			return
		}
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("failed to dequeue task", "err", err)
			}
			return
		}
		if task == nil {
			return
		}
		p.launch(taskCtx, task)
	}
}

func (p *Processor) launch(ctx context.Context, task *core.ProcessingTask) {
	taskCtx, cancel := context.WithCancelCause(ctx)

	p.mu.Lock()
	p.active[task.ID] = cancel
	p.inflight.Add(1)
	pool := p.pool
	p.mu.Unlock()

	err := pool.Submit(func() {
		p.execute(taskCtx, task)
	})
	if err != nil {
		p.release(task.ID)
		p.logger.Error("failed to submit task, returning it to the queue", "task", task.ID, "err", err)
		if err := p.queue.Enqueue(context.WithoutCancel(ctx), task); err != nil {
			p.logger.Error("failed to requeue task", "task", task.ID, "err", err)
		}
	}
}

// release removes a task from the active set.
func (p *Processor) release(id string) {
	p.mu.Lock()
	cancel, ok := p.active[id]
	delete(p.active, id)
	p.mu.Unlock()
	if ok {
		cancel(nil)
		p.inflight.Done()
	}
}

// execute runs one task to a terminal status.
func (p *Processor) execute(ctx context.Context, task *core.ProcessingTask) {
	defer p.release(task.ID)
	writeCtx := context.WithoutCancel(ctx)
	logger := p.logger.With("task", task.ID)

	start := p.now()
	err := p.queue.UpdateTaskStatus(writeCtx, task.ID, core.StatusUpdate{Status: core.StatusProcessing})
	if err != nil {
		if errors.Is(err, core.ErrInvalidTransition) || errors.Is(err, queue.ErrTaskNotFound) {
			logger.Info("task no longer runnable, skipping", "err", err)
			if ctx.Err() != nil {
				p.record(writeCtx, core.StatusCancelled, 0)
			}
			return
		}
		logger.Error("failed to mark task processing", "err", err)
		return
	}
	task.Status = core.StatusProcessing
	task.Progress = 0

	p.metrics.active.Add(writeCtx, 1)
	defer p.metrics.active.Add(writeCtx, -1)
	p.observers.OnTaskStart(writeCtx, task)
	logger.Info("task started", "file", task.FileName, "chunks", len(task.Chunks))

	timeout := task.Options.Timeout
	if timeout <= 0 {
		timeout = p.cfg.TaskTimeout
	}
	runCtx, cancel := context.WithTimeoutCause(ctx, timeout, ErrTaskTimeout)
	defer cancel()

	res, err := p.run(runCtx, task, timeout, logger)
	elapsed := p.now().Sub(start)

	switch {
	case ctx.Err() != nil:
		p.cancelled(writeCtx, task, context.Cause(ctx), elapsed)
	case errors.Is(err, ErrTaskTimeout) || errors.Is(err, context.DeadlineExceeded):
		p.failed(writeCtx, task, fmt.Errorf("%w after %s", ErrTaskTimeout, timeout), elapsed)
	case err != nil:
		p.failed(writeCtx, task, err, elapsed)
	case len(res.Embeddings) == 0 && len(res.Errors) > 0:
		p.failed(writeCtx, task, fmt.Errorf("%w: %d chunks", ErrAllEmbeddingsFailed, len(res.Errors)), elapsed)
	default:
		p.completed(writeCtx, task, res, elapsed)
	}
}

// run embeds the task's chunks, racing the computation against ctx so that
// a provider call that ignores cancellation cannot hold the task open.
func (p *Processor) run(ctx context.Context, task *core.ProcessingTask, timeout time.Duration, logger *slog.Logger) (*core.ChunkedProcessingResult, error) {
	cfg := p.embedCfg
	if task.Options.BatchSize > 0 {
		cfg.BatchSize = task.Options.BatchSize
	}
	// Retries are resolved at scheduling time, so zero disables retrying.
	cfg.MaxRetries = task.Options.MaxRetries
	soft := time.Duration(float64(timeout) * p.cfg.SoftCutoffRatio)
	if cfg.MaxProcessingTime == 0 || cfg.MaxProcessingTime > soft {
		cfg.MaxProcessingTime = soft
	}
	proc, err := embedding.NewChunkProcessor(p.embedder, embedding.WithConfig(cfg), embedding.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	type outcome struct {
		res *core.ChunkedProcessingResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := proc.ProcessChunks(ctx, task.Chunks, p.progress(ctx, task, logger))
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// progress writes per-batch progress back to the queue.
func (p *Processor) progress(ctx context.Context, task *core.ProcessingTask, logger *slog.Logger) embedding.ProgressFunc {
	return func(processed, total int) {
		if ctx.Err() != nil || total == 0 {
			return
		}
		pct := min(processed*100/total, 99)
		err := p.queue.UpdateTaskStatus(ctx, task.ID, core.StatusUpdate{Status: core.StatusProcessing, Progress: pct})
		if err != nil {
			logger.Debug("progress not recorded", "err", err)
			return
		}
		p.observers.OnTaskProgress(ctx, task, processed, total)
	}
}

func (p *Processor) completed(ctx context.Context, task *core.ProcessingTask, res *core.ChunkedProcessingResult, elapsed time.Duration) {
	err := p.queue.UpdateTaskStatus(ctx, task.ID, core.StatusUpdate{Status: core.StatusCompleted, Progress: 100})
	if errors.Is(err, core.ErrInvalidTransition) {
		p.cancelled(ctx, task, embedding.ErrCancelled, elapsed)
		return
	}
	if err != nil {
		p.logger.Error("failed to mark task completed", "task", task.ID, "err", err)
	}
	task.Status = core.StatusCompleted
	task.Progress = 100

	p.record(ctx, core.StatusCompleted, elapsed)
	p.logger.Info("task completed",
		"task", task.ID,
		"embedded", res.Stats.ProcessedChunks,
		"failed_chunks", res.Stats.FailedChunks,
		"complete", res.IsComplete,
		"elapsed", elapsed)
	p.observers.OnTaskComplete(ctx, task, &core.ProcessingResult{TaskID: task.ID, ChunkedProcessingResult: *res})
}

func (p *Processor) failed(ctx context.Context, task *core.ProcessingTask, cause error, elapsed time.Duration) {
	progress := task.Progress
	if current, err := p.queue.GetTask(ctx, task.ID); err == nil {
		progress = current.Progress
	}
	err := p.queue.UpdateTaskStatus(ctx, task.ID, core.StatusUpdate{
		Status:   core.StatusFailed,
		Progress: progress,
		Error:    cause.Error(),
	})
	if errors.Is(err, core.ErrInvalidTransition) {
		p.cancelled(ctx, task, embedding.ErrCancelled, elapsed)
		return
	}
	if err != nil {
		p.logger.Error("failed to mark task failed", "task", task.ID, "err", err)
	}
	task.Status = core.StatusFailed
	task.Progress = progress
	task.Error = cause.Error()

	p.record(ctx, core.StatusFailed, elapsed)
	p.logger.Warn("task failed", "task", task.ID, "err", cause, "elapsed", elapsed)
	p.observers.OnTaskError(ctx, task, cause)
}

func (p *Processor) cancelled(ctx context.Context, task *core.ProcessingTask, cause error, elapsed time.Duration) {
	if !errors.Is(cause, embedding.ErrCancelled) {
		cause = embedding.ErrCancelled
	}
	err := p.queue.UpdateTaskStatus(ctx, task.ID, core.StatusUpdate{Status: core.StatusCancelled, Error: "cancelled"})
	if err != nil && !errors.Is(err, core.ErrInvalidTransition) {
		p.logger.Error("failed to mark task cancelled", "task", task.ID, "err", err)
	}
	task.Status = core.StatusCancelled

	p.record(ctx, core.StatusCancelled, elapsed)
	p.logger.Info("task cancelled", "task", task.ID, "cause", cause, "elapsed", elapsed)
	p.observers.OnTaskError(ctx, task, cause)
}

// record updates the statistics and metrics after a terminal outcome.
func (p *Processor) record(ctx context.Context, status core.TaskStatus, elapsed time.Duration) {
	p.mu.Lock()
	switch status {
	case core.StatusCompleted:
		p.stats.CompletedTasks++
		p.stats.TotalProcessingTime += elapsed
	case core.StatusFailed:
		p.stats.FailedTasks++
		p.stats.TotalProcessingTime += elapsed
	case core.StatusCancelled:
		p.stats.CancelledTasks++
	}
	if n := p.stats.CompletedTasks + p.stats.FailedTasks; n > 0 {
		p.stats.AverageProcessingTime = p.stats.TotalProcessingTime / time.Duration(n)
	}
	p.mu.Unlock()

	p.metrics.record(ctx, string(status), elapsed)
}
