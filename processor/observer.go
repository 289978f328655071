package processor

import (
	"context"

	"github.com/poiesic/vectorit/core"
)

// Observer receives task lifecycle notifications. Each task produces one
// OnTaskStart followed by exactly one OnTaskComplete or OnTaskError.
// Methods are called from worker goroutines and must be safe for concurrent use.
type Observer interface {
	OnTaskStart(ctx context.Context, task *core.ProcessingTask)
	OnTaskProgress(ctx context.Context, task *core.ProcessingTask, processed, total int)
	OnTaskComplete(ctx context.Context, task *core.ProcessingTask, result *core.ProcessingResult)
	// OnTaskError is called for failed and cancelled tasks. Cancellation
	// errors match embedding.ErrCancelled.
	OnTaskError(ctx context.Context, task *core.ProcessingTask, err error)
}

// Observers fans notifications out to every member in order.
type Observers []Observer

var _ Observer = Observers(nil)

func (o Observers) OnTaskStart(ctx context.Context, task *core.ProcessingTask) {
	for _, obs := range o {
		obs.OnTaskStart(ctx, task)
	}
}

func (o Observers) OnTaskProgress(ctx context.Context, task *core.ProcessingTask, processed, total int) {
	for _, obs := range o {
		obs.OnTaskProgress(ctx, task, processed, total)
	}
}

func (o Observers) OnTaskComplete(ctx context.Context, task *core.ProcessingTask, result *core.ProcessingResult) {
	for _, obs := range o {
		obs.OnTaskComplete(ctx, task, result)
	}
}

func (o Observers) OnTaskError(ctx context.Context, task *core.ProcessingTask, err error) {
	for _, obs := range o {
		obs.OnTaskError(ctx, task, err)
	}
}

// NoopObserver ignores every notification. Embed it to implement a subset.
type NoopObserver struct{}

var _ Observer = NoopObserver{}

func (NoopObserver) OnTaskStart(context.Context, *core.ProcessingTask)                            {}
func (NoopObserver) OnTaskProgress(context.Context, *core.ProcessingTask, int, int)               {}
func (NoopObserver) OnTaskComplete(context.Context, *core.ProcessingTask, *core.ProcessingResult) {}
func (NoopObserver) OnTaskError(context.Context, *core.ProcessingTask, error)                     {}
