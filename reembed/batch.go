package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/embedding"
	"github.com/poiesic/vectorit/storage"
)

// BatchProcessor re-embeds the chunks of a batch of files.
type BatchProcessor struct {
	repo   storage.VectorRepository
	chunks *embedding.ChunkProcessor
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(repo storage.VectorRepository, chunks *embedding.ChunkProcessor) *BatchProcessor {
	return &BatchProcessor{
		repo:   repo,
		chunks: chunks,
	}
}

// Process re-embeds every chunk of each file and writes the new vectors back.
// A file is rewritten only when all of its chunks were embedded.
// Returns the number of chunks rewritten.
func (bp *BatchProcessor) Process(ctx context.Context, fileKeys []string) (int, error) {
	total := 0
	for _, key := range fileKeys {
		n, err := bp.processFile(ctx, key)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (bp *BatchProcessor) processFile(ctx context.Context, fileKey string) (int, error) {
	stored, err := bp.repo.GetChunks(ctx, fileKey)
	if err != nil {
		return 0, fmt.Errorf("failed to load chunks for %s: %w", fileKey, err)
	}
	if len(stored) == 0 {
		return 0, nil
	}

	result, err := bp.chunks.ProcessChunks(ctx, textChunks(stored), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", fileKey, err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("%w: %s: %d of %d chunks failed: %s",
			ErrIncompleteEmbedding, fileKey, len(result.Errors), len(stored), result.Errors[0].Error)
	}

	vectors := make(map[int][]float32, len(result.Embeddings))
	for _, e := range result.Embeddings {
		vectors[e.ChunkIndex] = e.Embedding
	}
	for _, c := range stored {
		v, ok := vectors[c.ChunkIndex]
		if !ok {
			return 0, fmt.Errorf("%w: %s: chunk %d was not attempted", ErrIncompleteEmbedding, fileKey, c.ChunkIndex)
		}
		c.Vector = v
	}

	if err := bp.repo.StoreChunks(ctx, fileKey, stored); err != nil {
		return 0, fmt.Errorf("failed to update chunks for %s: %w", fileKey, err)
	}
	return len(stored), nil
}

func textChunks(stored []*core.EmbeddedChunk) []core.TextChunk {
	out := make([]core.TextChunk, len(stored))
	for i, c := range stored {
		out[i] = core.TextChunk{
			Index:         c.ChunkIndex,
			Content:       c.Content,
			TokenCount:    c.TokenCount,
			StartPosition: c.Start,
			EndPosition:   c.End,
			Metadata:      c.Metadata,
		}
	}
	return out
}
