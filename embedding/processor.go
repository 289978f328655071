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

package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/core"
)

// ChunkProcessor turns a sequence of chunks into embeddings. Batches run one
// after another; a failing chunk never aborts its batch.
type ChunkProcessor struct {
	embedder ai.Embedder
	batch    ai.BatchEmbedder // nil when the provider has no batch API
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	pause    func(context.Context, time.Duration) error
}

// NewChunkProcessor creates a processor for embedder. The batch API is used
// when embedder also implements ai.BatchEmbedder.
func NewChunkProcessor(embedder ai.Embedder, opts ...Option) (*ChunkProcessor, error) {
	if embedder == nil {
		return nil, errors.New("embedder cannot be nil")
	}
	p := &ChunkProcessor{
		embedder: embedder,
		cfg:      DefaultConfig(),
		logger:   slog.Default().With("component", "chunk-processor"),
		now:      time.Now,
		pause:    sleep,
	}
	p.batch, _ = embedder.(ai.BatchEmbedder)

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *ChunkProcessor) Config() Config {
	return p.cfg
}

// run holds the state of one ProcessChunks call.
type run struct {
	start  time.Time
	result *core.ChunkedProcessingResult
	tokens map[int]int   // chunk index -> token count
	causes map[int]error // chunk index -> last failure
}

// ProcessChunks embeds chunks in batches, then retries the failures.
//
// Processing stops early, without error, once MaxProcessingTime has elapsed
// at a batch boundary; the chunks not yet attempted appear in neither
// Embeddings nor Errors. Returns ErrCancelled when ctx is cancelled and
// ctx.Err() when its deadline passes.
func (p *ChunkProcessor) ProcessChunks(ctx context.Context, chunks []core.TextChunk, onProgress ProgressFunc) (*core.ChunkedProcessingResult, error) {
	r := &run{
		start:  p.now(),
		result: &core.ChunkedProcessingResult{Stats: core.ProcessingStats{TotalChunks: len(chunks)}},
		tokens: make(map[int]int, len(chunks)),
		causes: make(map[int]error),
	}
	for _, c := range chunks {
		r.tokens[c.Index] = c.TokenCount
	}

	attempted := 0
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		if p.pastCutoff(r) {
			p.logger.Info("soft cutoff reached",
				"attempted", attempted, "total", len(chunks), "elapsed", p.now().Sub(r.start))
			break
		}
		if start > 0 && p.cfg.BatchDelay > 0 {
			if err := p.pause(ctx, p.cfg.BatchDelay); err != nil {
				return nil, contextError(err)
			}
		}

		end := min(start+p.cfg.BatchSize, len(chunks))
		p.processBatch(ctx, chunks[start:end], r)
		attempted = end
		if onProgress != nil {
			onProgress(attempted, len(chunks))
		}
	}

	if err := p.retryPass(ctx, chunks, r); err != nil {
		return nil, err
	}

	res := r.result
	elapsed := p.now().Sub(r.start)
	res.Stats.ProcessedChunks = len(res.Embeddings)
	res.Stats.FailedChunks = len(res.Errors)
	res.Stats.ProcessingTime = elapsed
	res.Stats.AvgTimePerChunk = elapsed / time.Duration(max(1, res.Stats.ProcessedChunks))
	for _, e := range res.Embeddings {
		res.Stats.TotalTokens += e.TokenCount
	}
	res.IsComplete = res.Stats.FailedChunks == 0 && attempted == len(chunks)
	res.Status = core.StatusCompleted
	if len(res.Embeddings) == 0 && len(res.Errors) > 0 {
		res.Status = core.StatusFailed
	}

	p.logger.Debug("chunks processed",
		"total", res.Stats.TotalChunks,
		"embedded", res.Stats.ProcessedChunks,
		"failed", res.Stats.FailedChunks,
		"complete", res.IsComplete,
		"elapsed", elapsed)
	return res, nil
}

// processBatch embeds one batch, falling back to per-chunk calls when the
// batch call fails or no batch API exists.
func (p *ChunkProcessor) processBatch(ctx context.Context, batch []core.TextChunk, r *run) {
	if p.batch != nil {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := p.batch.EmbedTexts(ctx, texts)
		if err == nil && len(vectors) == len(batch) {
			for i, c := range batch {
				p.addEmbedding(r, c.Index, vectors[i])
			}
			return
		}
		if err == nil {
			err = fmt.Errorf("%w: %d vectors for %d texts", ai.ErrUnexpectedResponse, len(vectors), len(batch))
		}
		p.logger.Warn("batch call failed, falling back to single calls", "size", len(batch), "err", err)
	}

	for _, c := range batch {
		vector, err := p.embedder.EmbedText(ctx, c.Content)
		if err != nil {
			r.causes[c.Index] = err
			r.result.Errors = append(r.result.Errors, core.ChunkError{ChunkIndex: c.Index, Error: err.Error()})
			continue
		}
		p.addEmbedding(r, c.Index, vector)
	}
}

// retryPass re-attempts each failed chunk with backoff until it succeeds or
// its retry count reaches MaxRetries. Failures the provider marks permanent
// are left alone.
func (p *ChunkProcessor) retryPass(ctx context.Context, chunks []core.TextChunk, r *run) error {
	if len(r.result.Errors) == 0 || p.cfg.MaxRetries == 0 {
		return nil
	}
	content := make(map[int]string, len(r.result.Errors))
	for _, c := range chunks {
		content[c.Index] = c.Content
	}

	remaining := r.result.Errors[:0]
	pending := r.result.Errors
	for i := range pending {
		chunkErr := pending[i]
		if err := checkContext(ctx); err != nil {
			return err
		}
		attempts := p.cfg.MaxRetries - chunkErr.RetryCount
		if attempts <= 0 || !ai.IsRetryable(r.causes[chunkErr.ChunkIndex]) || p.pastCutoff(r) {
			remaining = append(remaining, chunkErr)
			continue
		}

		var vector []float32
		err := RetryWithBackoff(ctx, func() error {
			var err error
			vector, err = p.embedder.EmbedText(ctx, content[chunkErr.ChunkIndex])
			if err != nil {
				chunkErr.RetryCount++
				chunkErr.Error = err.Error()
			}
			return err
		}, attempts, p.cfg.RetryBaseDelay, ai.IsRetryable)

		if err == nil {
			p.logger.Debug("chunk recovered on retry", "chunk", chunkErr.ChunkIndex, "retries", chunkErr.RetryCount)
			p.addEmbedding(r, chunkErr.ChunkIndex, vector)
			continue
		}
		remaining = append(remaining, chunkErr)
		if ctx.Err() != nil {
			return contextError(ctx.Err())
		}
	}
	r.result.Errors = remaining
	return nil
}

func (p *ChunkProcessor) addEmbedding(r *run, index int, vector []float32) {
	if p.cfg.NormalizeVectors {
		vector = NormalizeVector(vector)
	}
	r.result.Embeddings = append(r.result.Embeddings, core.ChunkEmbedding{
		ChunkIndex: index,
		Embedding:  vector,
		TokenCount: r.tokens[index],
	})
}

func (p *ChunkProcessor) pastCutoff(r *run) bool {
	return p.cfg.MaxProcessingTime > 0 && p.now().Sub(r.start) >= p.cfg.MaxProcessingTime
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	return nil
}

// contextError maps cancellation to ErrCancelled and passes deadlines through.
func contextError(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return err
}
