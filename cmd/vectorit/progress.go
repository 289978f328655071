package main

import (
	"context"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/processor"
)

// progressObserver advances a progress bar by chunks attempted across tasks.
type progressObserver struct {
	processor.NoopObserver

	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	seen map[string]int
	done int
}

func newProgressObserver(w io.Writer) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Embedding"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
		seen: make(map[string]int),
	}
}

// start sets the number of chunks expected.
func (p *progressObserver) start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.ChangeMax(total)
}

func (p *progressObserver) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}

func (p *progressObserver) OnTaskProgress(_ context.Context, task *core.ProcessingTask, processed, _ int) {
	p.advance(task.ID, processed)
}

// OnTaskComplete counts only attempted chunks; chunks left by a soft cutoff
// are counted by their continuation task.
func (p *progressObserver) OnTaskComplete(_ context.Context, task *core.ProcessingTask, result *core.ProcessingResult) {
	p.advance(task.ID, result.Stats.ProcessedChunks+result.Stats.FailedChunks)
}

func (p *progressObserver) OnTaskError(_ context.Context, task *core.ProcessingTask, _ error) {
	p.advance(task.ID, len(task.Chunks))
}

func (p *progressObserver) advance(id string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delta := n - p.seen[id]
	if delta <= 0 {
		return
	}
	p.seen[id] = n
	p.done += delta
	p.bar.Add(delta)
}
