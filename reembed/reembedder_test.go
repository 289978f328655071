package reembed

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/poiesic/vectorit/ai/mock"
	"github.com/poiesic/vectorit/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.Embedding.RetryBaseDelay = time.Millisecond
	return cfg
}

func TestReembedder_Run(t *testing.T) {
	repo := setupTestDB(t)
	storeFile(t, repo, "a.md", 3)
	storeFile(t, repo, "b.md", 1)
	storeFile(t, repo, "c.md", 2)

	var buf bytes.Buffer
	r, err := NewReembedder(repo, mock.NewMockEmbedder(), testConfig(), &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 6, summary.Chunks)

	for _, key := range []string{"a.md", "b.md", "c.md"} {
		got, err := repo.GetChunks(context.Background(), key)
		require.NoError(t, err)
		for _, c := range got {
			assert.Len(t, c.Vector, mock.DefaultDimensions, "%s#%d", key, c.ChunkIndex)
		}
	}

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 3 files (batch size: 2)")
	assert.Contains(t, output, "Files: 3/3")
	assert.Contains(t, output, "Processed 6 chunks in 3 files")
}

func TestReembedder_EmptyDatabase(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewReembedder(setupTestDB(t), mock.NewMockEmbedder(), nil, &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Files)
	assert.Contains(t, buf.String(), "No embedded files found")
}

func TestReembedder_EmbeddingError(t *testing.T) {
	repo := setupTestDB(t)
	storeFile(t, repo, "a.md", 1)
	storeFile(t, repo, "b.md", 1)
	storeFile(t, repo, "c.md", 1)

	embedder := mock.NewMockEmbedder()
	failOn(embedder, "c.md")
	r, err := NewReembedder(repo, embedder, testConfig(), nil)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrIncompleteEmbedding)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 2, summary.Chunks)
}

func TestReembedder_ContextCancellation(t *testing.T) {
	repo := setupTestDB(t)
	storeFile(t, repo, "a.md", 1)

	r, err := NewReembedder(repo, mock.NewMockEmbedder(), testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewReembedder_Validation(t *testing.T) {
	repo := setupTestDB(t)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), nil, nil)
	assert.Error(t, err)

	_, err = NewReembedder(repo, nil, nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Embedding.BatchSize = 0
	_, err = NewReembedder(repo, mock.NewMockEmbedder(), cfg, nil)
	assert.ErrorIs(t, err, embedding.ErrInvalidConfig)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, 1, cfg.ReportInterval)
	assert.Equal(t, 3, cfg.Embedding.MaxRetries)
	assert.Equal(t, time.Second, cfg.Embedding.RetryBaseDelay)
	assert.Zero(t, cfg.Embedding.MaxProcessingTime)
	require.NoError(t, cfg.Embedding.Validate())
}
