package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/embedding"
)

// OnTaskComplete stores the task's embeddings, reschedules any chunks a soft
// cutoff left unprocessed and then brings a split parent up to date.
// The processor reports each task's completion once, so vectors are written
// once per task.
func (p *Pipeline) OnTaskComplete(ctx context.Context, task *core.ProcessingTask, result *core.ProcessingResult) {
	logger := p.logger.With("task", task.ID, "file", task.FileName)

	chunks := embeddedChunks(task, result, p.now().UTC())
	if len(chunks) > 0 {
		if err := p.vectors.StoreChunks(ctx, fileKey(task), chunks); err != nil {
			logger.Error("error storing vectors", "err", err)
		} else {
			logger.Debug("vectors stored", "chunks", len(chunks))
		}
	}

	if rest := result.Unprocessed(task.Chunks); len(rest) > 0 {
		if _, err := p.scheduler.ScheduleContinuation(ctx, task, rest); err != nil {
			logger.Error("error scheduling continuation", "chunks", len(rest), "err", err)
		}
	}

	p.syncParent(ctx, task)
}

// OnTaskError keeps a split parent in sync with a failed or cancelled part.
func (p *Pipeline) OnTaskError(ctx context.Context, task *core.ProcessingTask, err error) {
	if !errors.Is(err, embedding.ErrCancelled) {
		p.logger.Warn("task failed", "task", task.ID, "file", task.FileName, "err", err)
	}
	p.syncParent(ctx, task)
}

func (p *Pipeline) syncParent(ctx context.Context, task *core.ProcessingTask) {
	parentID := task.Metadata.ParentTaskID
	if parentID == "" {
		return
	}
	if _, err := p.scheduler.SyncParent(ctx, parentID); err != nil {
		p.logger.Error("error syncing parent task", "task", task.ID, "parent", parentID, "err", err)
	}
}

// fileKey is the vector repository key for a task's document.
func fileKey(task *core.ProcessingTask) string {
	if task.Metadata.Source != "" {
		return task.Metadata.Source
	}
	return task.FileName
}

// embeddedChunks pairs each embedding with its chunk by ChunkIndex.
func embeddedChunks(task *core.ProcessingTask, result *core.ProcessingResult, now time.Time) []*core.EmbeddedChunk {
	byIndex := make(map[int]core.TextChunk, len(task.Chunks))
	for _, c := range task.Chunks {
		byIndex[c.Index] = c
	}

	key := fileKey(task)
	out := make([]*core.EmbeddedChunk, 0, len(result.Embeddings))
	for _, e := range result.Embeddings {
		c, ok := byIndex[e.ChunkIndex]
		if !ok {
			continue
		}
		tokens := c.TokenCount
		if e.TokenCount > 0 {
			tokens = e.TokenCount
		}
		out = append(out, &core.EmbeddedChunk{
			Id:         core.EmbeddedChunkID(key, c.Index),
			FileKey:    key,
			ChunkIndex: c.Index,
			Content:    c.Content,
			TokenCount: tokens,
			Start:      c.StartPosition,
			End:        c.EndPosition,
			Metadata:   c.Metadata,
			Vector:     e.Embedding,
			InsertedAt: now,
		})
	}
	return out
}
