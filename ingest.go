package vectorit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/ingestion"
	"github.com/poiesic/vectorit/reembed"
)

// IngestFiles reads, extracts and schedules local files concurrently. Each
// file is keyed by its cleaned slash path. Results are in input order; the
// first failure cancels files not yet started and is returned.
func (e *Engine) IngestFiles(ctx context.Context, paths []string, opts *ingestion.IngestOptions) ([]*ingestion.IngestResult, error) {
	results := make([]*ingestion.IngestResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			key := filepath.ToSlash(filepath.Clean(path))
			var declared string
			if opts != nil {
				declared = opts.Format
			}
			doc, err := e.extractor.Extract(gctx, key, declared, data)
			if err != nil {
				return err
			}
			res, err := e.pipeline.IngestDocument(gctx, doc, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// IngestObject schedules a document from the configured object store.
func (e *Engine) IngestObject(ctx context.Context, key string, opts *ingestion.IngestOptions) (*ingestion.IngestResult, error) {
	return e.pipeline.IngestObject(ctx, key, opts)
}

// ListObjects returns the keys in the configured object store that start with prefix.
func (e *Engine) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	return e.store.List(ctx, prefix)
}

// Search returns the chunks most similar to query.
func (e *Engine) Search(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	if maxHits <= 0 {
		maxHits = e.cfg.Search.MaxHits
	}
	return e.searcher.FindSimilar(ctx, query, maxHits)
}

// Reembed recomputes every stored vector with the engine's provider, using
// the configured batch size, retries and normalization. Progress is written
// to progress. The processor should not be running concurrently.
func (e *Engine) Reembed(ctx context.Context, progress io.Writer) (*reembed.Summary, error) {
	cfg := reembed.DefaultConfig()
	cfg.Embedding = e.cfg.ToEmbedding()
	r, err := reembed.NewReembedder(e.vectors, e.provider.Embedder(), cfg, progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
