package vectorit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/vectorit/ai/mock"
	"github.com/poiesic/vectorit/config"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Queue.Backend = "memory"
	cfg.Storage.Path = ""
	cfg.Source.Dir = t.TempDir()
	cfg.Processor.PollInterval = 10 * time.Millisecond
	cfg.Processor.RetryBaseDelay = time.Millisecond
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type countingObserver struct {
	processor.NoopObserver
	completed chan string
}

func (c *countingObserver) OnTaskComplete(_ context.Context, task *core.ProcessingTask, _ *core.ProcessingResult) {
	c.completed <- task.ID
}

func TestNewEngine(t *testing.T) {
	ctx := context.Background()

	t.Run("in-memory components", func(t *testing.T) {
		e, err := NewEngine(ctx, WithConfig(testConfig(t)), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		defer e.Close()

		assert.NotNil(t, e.Queue())
		assert.NotNil(t, e.Vectors())
		assert.NotNil(t, e.Scheduler())
		assert.NotNil(t, e.Processor())
		assert.NotNil(t, e.Pipeline())
		assert.NotNil(t, e.Searcher())
		assert.NotNil(t, e.backend)
	})

	t.Run("badger on disk", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Queue.Backend = "badger"
		cfg.Storage.Path = filepath.Join(t.TempDir(), "data")
		e, err := NewEngine(ctx, WithConfig(cfg), WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		assert.NoError(t, e.Close())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Queue.Backend = "kafka"
		_, err := NewEngine(ctx, WithConfig(cfg), WithProvider(mock.NewMockProvider()))
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("badger path is a file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Path = writeFile(t, t.TempDir(), "not_a_dir", "x")
		_, err := NewEngine(ctx, WithConfig(cfg), WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
	})
}

func TestEngine_IngestAndSearch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	provider := mock.NewMockProvider()
	obs := &countingObserver{completed: make(chan string, 8)}

	e, err := NewEngine(ctx, WithConfig(cfg), WithProvider(provider), WithObserver(obs))
	require.NoError(t, err)
	defer e.Close()

	dir := t.TempDir()
	a := writeFile(t, dir, "alpha.txt", "Alpha explains how the scheduler splits large documents.")
	b := writeFile(t, dir, "beta.md", "# Beta\n\nBeta covers the background processor.\n")

	results, err := e.IngestFiles(ctx, []string{a, b}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.ToSlash(filepath.Clean(a)), results[0].Key)
	assert.Equal(t, 1, results[0].Chunks)

	require.NoError(t, e.Start(ctx))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, e.WaitIdle(waitCtx))
	assert.Len(t, obs.completed, 2)

	// The mock provider embeds identical text identically
	hits, err := e.Search(ctx, "Alpha explains how the scheduler splits large documents.", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, results[0].Key, hits[0].Chunk.FileKey)

	stats, err := e.Scheduler().GetQueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Completed)
}

func TestEngine_IngestObject(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeFile(t, cfg.Source.Dir, "guide.md", "# Guide\n\nStored in the object store.\n")

	e, err := NewEngine(ctx, WithConfig(cfg), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer e.Close()

	res, err := e.IngestObject(ctx, "guide.md", nil)
	require.NoError(t, err)
	assert.Equal(t, "guide.md", res.Key)

	task, err := e.Queue().GetTask(ctx, res.Schedule.MainTaskID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, task.Status)
}

func TestEngine_IngestFilesMissing(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, WithConfig(testConfig(t)), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.IngestFiles(ctx, []string{filepath.Join(t.TempDir(), "missing.txt")}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEngine_Reembed(t *testing.T) {
	ctx := context.Background()
	e, err := NewEngine(ctx, WithConfig(testConfig(t)), WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	defer e.Close()

	stale := []*core.EmbeddedChunk{
		{ChunkIndex: 0, Content: "first part", Vector: []float32{1, 0}},
		{ChunkIndex: 1, Content: "second part", Vector: []float32{0, 1}},
	}
	require.NoError(t, e.Vectors().StoreChunks(ctx, "notes.txt", stale))

	var progress bytes.Buffer
	summary, err := e.Reembed(ctx, &progress)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 2, summary.Chunks)
	assert.Contains(t, progress.String(), "Reembedding complete")

	got, err := e.Vectors().GetChunks(ctx, "notes.txt")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, mock.Vector("second part", mock.DefaultDimensions), got[1].Vector)
}
