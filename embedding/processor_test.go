package embedding

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/ai/mock"
	"github.com/poiesic/vectorit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunks(n int) []core.TextChunk {
	chunks := make([]core.TextChunk, n)
	for i := range chunks {
		chunks[i] = core.TextChunk{
			Index:      i,
			Content:    fmt.Sprintf("chunk %d", i),
			TokenCount: 3,
			Metadata:   core.ChunkMetadata{Type: core.ChunkTypeText},
		}
	}
	return chunks
}

// failFor makes every call that includes text fail with err.
func failFor(m *mock.MockEmbedder, text string, err error) {
	m.EmbedTextFunc = func(ctx context.Context, t string) ([]float32, error) {
		if t == text {
			return nil, err
		}
		return mock.Vector(t, 8), nil
	}
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if slices.Contains(texts, text) {
			return nil, err
		}
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = mock.Vector(t, 8)
		}
		return out, nil
	}
}

func newProcessor(t *testing.T, embedder ai.Embedder, opts ...Option) *ChunkProcessor {
	t.Helper()
	opts = append([]Option{WithRetryBaseDelay(0)}, opts...)
	p, err := NewChunkProcessor(embedder, opts...)
	require.NoError(t, err)
	return p
}

func TestProcessChunks_Batches(t *testing.T) {
	m := mock.NewMockEmbedder()
	p := newProcessor(t, m, WithBatchSize(10))

	var progress [][2]int
	res, err := p.ProcessChunks(context.Background(), makeChunks(25), func(processed, total int) {
		progress = append(progress, [2]int{processed, total})
	})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 5}, m.BatchSizes())
	assert.Zero(t, m.TextCalls())
	assert.Equal(t, [][2]int{{10, 25}, {20, 25}, {25, 25}}, progress)

	assert.Equal(t, 25, res.Stats.TotalChunks)
	assert.Equal(t, 25, res.Stats.ProcessedChunks)
	assert.Zero(t, res.Stats.FailedChunks)
	assert.Equal(t, 75, res.Stats.TotalTokens)
	assert.True(t, res.IsComplete)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Empty(t, res.Errors)
	for i, e := range res.Embeddings {
		assert.Equal(t, i, e.ChunkIndex)
		assert.Len(t, e.Embedding, mock.DefaultDimensions)
	}
}

func TestProcessChunks_PersistentFailure(t *testing.T) {
	m := mock.NewMockEmbedder()
	failFor(m, "chunk 3", errors.New("connection reset"))
	p := newProcessor(t, m, WithBatchSize(10), WithMaxRetries(3))

	res, err := p.ProcessChunks(context.Background(), makeChunks(25), nil)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].ChunkIndex)
	assert.Equal(t, 3, res.Errors[0].RetryCount)
	assert.Contains(t, res.Errors[0].Error, "connection reset")
	assert.Len(t, res.Embeddings, 24)
	assert.Equal(t, 24, res.Stats.ProcessedChunks)
	assert.Equal(t, 1, res.Stats.FailedChunks)
	assert.False(t, res.IsComplete)
	assert.Equal(t, core.StatusCompleted, res.Status)

	// One fallback pass over the first batch plus three retries for chunk 3.
	assert.Equal(t, 10+3, m.TextCalls())
}

func TestProcessChunks_RecoversOnRetry(t *testing.T) {
	m := mock.NewMockEmbedder()
	var mu sync.Mutex
	failures := 0
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		defer mu.Unlock()
		if text == "chunk 1" && failures < 2 {
			failures++
			return nil, ai.NewProviderError(ai.ErrRateLimited, errors.New("429"))
		}
		return mock.Vector(text, 8), nil
	}
	p := newProcessor(t, m.WithoutBatch(), WithBatchSize(2), WithMaxRetries(3))

	res, err := p.ProcessChunks(context.Background(), makeChunks(4), nil)
	require.NoError(t, err)

	assert.Empty(t, res.Errors)
	assert.Len(t, res.Embeddings, 4)
	assert.True(t, res.IsComplete)
	assert.Equal(t, 2, failures)
	assert.Empty(t, m.BatchSizes())

	indexes := make([]int, 0, len(res.Embeddings))
	for _, e := range res.Embeddings {
		indexes = append(indexes, e.ChunkIndex)
	}
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, indexes)
}

func TestProcessChunks_PermanentErrorNotRetried(t *testing.T) {
	m := mock.NewMockEmbedder()
	failFor(m, "chunk 0", ai.NewProviderError(ai.ErrInputTooLarge, nil))
	p := newProcessor(t, m.WithoutBatch(), WithMaxRetries(3))

	res, err := p.ProcessChunks(context.Background(), makeChunks(2), nil)
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Zero(t, res.Errors[0].RetryCount)
	assert.Equal(t, 2, m.TextCalls())
	assert.False(t, res.IsComplete)
}

func TestProcessChunks_AllFailed(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, ai.NewProviderError(ai.ErrAuthentication, nil)
	}
	p := newProcessor(t, m.WithoutBatch())

	res, err := p.ProcessChunks(context.Background(), makeChunks(3), nil)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Empty(t, res.Embeddings)
	assert.Equal(t, 3, res.Stats.FailedChunks)
}

func TestProcessChunks_BatchCountMismatchFallsBack(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	p := newProcessor(t, m, WithBatchSize(5))

	res, err := p.ProcessChunks(context.Background(), makeChunks(5), nil)
	require.NoError(t, err)
	assert.Len(t, res.Embeddings, 5)
	assert.Equal(t, 5, m.TextCalls())
}

func TestProcessChunks_SoftCutoff(t *testing.T) {
	clock := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		clock = clock.Add(10 * time.Second)
		out := make([][]float32, len(texts))
		for i, t := range texts {
			out[i] = mock.Vector(t, 8)
		}
		return out, nil
	}
	p := newProcessor(t, m, WithBatchSize(10), WithMaxProcessingTime(15*time.Second))
	p.now = func() time.Time { return clock }

	chunks := makeChunks(50)
	res, err := p.ProcessChunks(context.Background(), chunks, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10}, m.BatchSizes())
	assert.Len(t, res.Embeddings, 20)
	assert.Empty(t, res.Errors)
	assert.False(t, res.IsComplete)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, 20*time.Second, res.Stats.ProcessingTime)
	assert.Equal(t, time.Second, res.Stats.AvgTimePerChunk)

	rest := res.Unprocessed(chunks)
	require.Len(t, rest, 30)
	assert.Equal(t, 20, rest[0].Index)
}

func TestProcessChunks_Cancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		m := mock.NewMockEmbedder()
		p := newProcessor(t, m)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := p.ProcessChunks(ctx, makeChunks(5), nil)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, m.CallCount())
	})

	t.Run("between batches", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m := mock.NewMockEmbedder()
		m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			cancel()
			return make([][]float32, len(texts)), nil
		}
		p := newProcessor(t, m, WithBatchSize(2))

		_, err := p.ProcessChunks(ctx, makeChunks(6), nil)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Equal(t, []int{2}, m.BatchSizes())
	})

	t.Run("deadline", func(t *testing.T) {
		m := mock.NewMockEmbedder()
		p := newProcessor(t, m)
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		_, err := p.ProcessChunks(ctx, makeChunks(1), nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrCancelled)
	})
}

func TestProcessChunks_BatchDelay(t *testing.T) {
	t.Run("pauses between batches", func(t *testing.T) {
		var events []string
		m := mock.NewMockEmbedder()
		m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			events = append(events, fmt.Sprintf("batch of %d", len(texts)))
			return make([][]float32, len(texts)), nil
		}
		p := newProcessor(t, m, WithBatchSize(2), WithBatchDelay(time.Minute))
		p.pause = func(_ context.Context, d time.Duration) error {
			events = append(events, "pause "+d.String())
			return nil
		}

		res, err := p.ProcessChunks(context.Background(), makeChunks(5), nil)
		require.NoError(t, err)
		assert.True(t, res.IsComplete)
		assert.Equal(t, []string{
			"batch of 2",
			"pause 1m0s",
			"batch of 2",
			"pause 1m0s",
			"batch of 1",
		}, events)
	})

	t.Run("zero delay skips the pause", func(t *testing.T) {
		m := mock.NewMockEmbedder()
		p := newProcessor(t, m, WithBatchSize(2), WithBatchDelay(0))
		paused := 0
		p.pause = func(context.Context, time.Duration) error {
			paused++
			return nil
		}

		_, err := p.ProcessChunks(context.Background(), makeChunks(5), nil)
		require.NoError(t, err)
		assert.Zero(t, paused)
		assert.Equal(t, []int{2, 2, 1}, m.BatchSizes())
	})

	t.Run("cancelled during the pause", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m := mock.NewMockEmbedder()
		m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			time.AfterFunc(20*time.Millisecond, cancel)
			return make([][]float32, len(texts)), nil
		}
		p := newProcessor(t, m, WithBatchSize(2), WithBatchDelay(time.Minute))

		start := time.Now()
		_, err := p.ProcessChunks(ctx, makeChunks(6), nil)
		assert.ErrorIs(t, err, ErrCancelled)
		assert.Less(t, time.Since(start), 30*time.Second)
		assert.Equal(t, []int{2}, m.BatchSizes())
	})
}

func TestProcessChunks_Empty(t *testing.T) {
	p := newProcessor(t, mock.NewMockEmbedder())

	res, err := p.ProcessChunks(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
	assert.Equal(t, core.StatusCompleted, res.Status)
}

func TestProcessChunks_Normalize(t *testing.T) {
	m := mock.NewMockEmbedder()
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{3, 4}, nil
	}
	p := newProcessor(t, m.WithoutBatch(), WithNormalizeVectors(true))

	res, err := p.ProcessChunks(context.Background(), makeChunks(1), nil)
	require.NoError(t, err)
	require.Len(t, res.Embeddings, 1)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, res.Embeddings[0].Embedding, 1e-6)
}

func TestNewChunkProcessor_Validation(t *testing.T) {
	_, err := NewChunkProcessor(nil)
	assert.Error(t, err)

	_, err = NewChunkProcessor(mock.NewMockEmbedder(), WithConfig(Config{BatchSize: 0}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChunkProcessor(mock.NewMockEmbedder(), WithMaxRetries(-1))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewChunkProcessor(mock.NewMockEmbedder(), WithLogger(nil))
	assert.Error(t, err)

	p, err := NewChunkProcessor(mock.NewMockEmbedder(), WithBatchSize(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().BatchSize, p.Config().BatchSize)
}
