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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/embedding"
	"github.com/poiesic/vectorit/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of files processed between progress updates
	BatchSize int

	// ReportInterval is how often to report progress (number of files)
	ReportInterval int

	// Embedding controls batching, retries and normalization of the new vectors.
	// MaxProcessingTime is ignored; a file is always embedded in full.
	Embedding embedding.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	cfg := embedding.DefaultConfig()
	cfg.RetryBaseDelay = time.Second
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 1,
		Embedding:      cfg,
	}
}

// Summary describes a finished run.
type Summary struct {
	Files   int
	Chunks  int
	Elapsed time.Duration
}

// Reembedder orchestrates the reembedding of every file in a vector repository.
type Reembedder struct {
	repo      storage.VectorRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *FileIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.VectorRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, errors.New("vector repository cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	embedCfg := config.Embedding
	embedCfg.MaxProcessingTime = 0
	chunks, err := embedding.NewChunkProcessor(embedder, embedding.WithConfig(embedCfg))
	if err != nil {
		return nil, err
	}

	return &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, chunks),
		iterator:  NewFileIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run re-embeds every stored file with the configured embedder.
// Progress is reported to the configured writer. A failed file aborts the run;
// files already processed keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	files, err := r.repo.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	summary := &Summary{}
	if len(files) == 0 {
		fmt.Fprintf(r.progress, "No embedded files found (0 files)\n")
		return summary, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d files (batch size: %d)\n",
		len(files), r.iterator.batchSize)

	tracker := embedding.NewProgressTracker(r.progress, "Files", len(files), r.config.ReportInterval)
	tracker.Start()
	start := time.Now()

	err = r.iterator.ForEach(ctx, func(batch []string) error {
		n, err := r.processor.Process(ctx, batch)
		summary.Chunks += n
		if err != nil {
			return err
		}
		summary.Files += len(batch)
		tracker.Increment(len(batch))
		return nil
	})
	summary.Elapsed = time.Since(start)
	if err != nil {
		r.logger.Error("reembedding aborted", "files", summary.Files, "chunks", summary.Chunks, "error", err)
		return summary, err
	}

	tracker.Finish()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %d files in %v\n",
		summary.Chunks, summary.Files, summary.Elapsed.Round(time.Millisecond))
	return summary, nil
}
