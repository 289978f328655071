package reembed

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/ai/mock"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/embedding"
	"github.com/poiesic/vectorit/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatchProcessor(t *testing.T, embedder ai.Embedder, opts ...embedding.Option) (*BatchProcessor, storage.VectorRepository) {
	t.Helper()
	opts = append([]embedding.Option{embedding.WithRetryBaseDelay(time.Millisecond)}, opts...)
	chunks, err := embedding.NewChunkProcessor(embedder, opts...)
	require.NoError(t, err)
	repo := setupTestDB(t)
	return NewBatchProcessor(repo, chunks), repo
}

// failOn makes embedder reject any text containing marker.
func failOn(embedder *mock.MockEmbedder, marker string) {
	reject := ai.NewProviderError(ai.ErrInvalidRequest, nil)
	embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		if strings.Contains(text, marker) {
			return nil, reject
		}
		return mock.Vector(text, mock.DefaultDimensions), nil
	}
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.Contains(text, marker) {
				return nil, reject
			}
			out[i] = mock.Vector(text, mock.DefaultDimensions)
		}
		return out, nil
	}
}

func TestBatchProcessor_Process(t *testing.T) {
	bp, repo := newBatchProcessor(t, mock.NewMockEmbedder())
	ctx := context.Background()
	storeFile(t, repo, "a.md", 3)
	storeFile(t, repo, "b.md", 2)

	n, err := bp.Process(ctx, []string{"a.md", "b.md"})
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := repo.GetChunks(ctx, "a.md")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, mock.Vector(c.Content, mock.DefaultDimensions), c.Vector)
		assert.Equal(t, "Intro", c.Metadata.Heading)
		assert.Equal(t, i*20, c.Start)
		assert.Equal(t, i*20+15, c.End)
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	bp, _ := newBatchProcessor(t, mock.NewMockEmbedder())

	n, err := bp.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = bp.Process(context.Background(), []string{"missing.md"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	failOn(embedder, "chunk 1")
	bp, repo := newBatchProcessor(t, embedder)
	ctx := context.Background()
	storeFile(t, repo, "a.md", 3)

	n, err := bp.Process(ctx, []string{"a.md"})
	require.ErrorIs(t, err, ErrIncompleteEmbedding)
	assert.Contains(t, err.Error(), "1 of 3 chunks failed")
	assert.Zero(t, n)

	// The file keeps its previous vectors.
	got, err := repo.GetChunks(ctx, "a.md")
	require.NoError(t, err)
	for _, c := range got {
		assert.Equal(t, []float32{1, 0}, c.Vector)
	}
}

func TestBatchProcessor_StopsAtFailedFile(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	failOn(embedder, "b.md")
	bp, repo := newBatchProcessor(t, embedder)
	storeFile(t, repo, "a.md", 2)
	storeFile(t, repo, "b.md", 1)

	n, err := bp.Process(context.Background(), []string{"a.md", "b.md"})
	require.ErrorIs(t, err, ErrIncompleteEmbedding)
	assert.Equal(t, 2, n)
}

func TestBatchProcessor_Retry(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		if calls.Add(1) == 1 {
			return nil, ai.NewProviderError(ai.ErrRateLimited, nil)
		}
		return mock.Vector(text, mock.DefaultDimensions), nil
	}
	bp, repo := newBatchProcessor(t, embedder.WithoutBatch(), embedding.WithMaxRetries(3))
	storeFile(t, repo, "a.md", 2)

	n, err := bp.Process(context.Background(), []string{"a.md"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatchProcessor_ContextCancellation(t *testing.T) {
	bp, repo := newBatchProcessor(t, mock.NewMockEmbedder())
	storeFile(t, repo, "a.md", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bp.Process(ctx, []string{"a.md"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchProcessor_VectorNormalization(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}
	bp, repo := newBatchProcessor(t, embedder, embedding.WithNormalizeVectors(true))
	storeFile(t, repo, "a.md", 1)

	_, err := bp.Process(context.Background(), []string{"a.md"})
	require.NoError(t, err)

	got, err := repo.GetChunks(context.Background(), "a.md")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, got[0].Vector, 1e-6)
}

func TestTextChunks(t *testing.T) {
	stored := []*core.EmbeddedChunk{{
		ChunkIndex: 4, Content: "body", TokenCount: 2, Start: 10, End: 14,
		Metadata: core.ChunkMetadata{Type: core.ChunkTypeCode, Declaration: "func main()"},
	}}
	got := textChunks(stored)
	require.Len(t, got, 1)
	assert.Equal(t, core.TextChunk{
		Index: 4, Content: "body", TokenCount: 2, StartPosition: 10, EndPosition: 14,
		Metadata: core.ChunkMetadata{Type: core.ChunkTypeCode, Declaration: "func main()"},
	}, got[0])
}
