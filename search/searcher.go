package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/storage"
)

const (
	// DefaultMinSimilarity is the cosine similarity a chunk needs to be a candidate.
	DefaultMinSimilarity = 0.5

	// verbatimBoost is added to chunks containing every query term.
	verbatimBoost = 0.3

	// candidateFactor widens the similarity query so that boosted chunks
	// ranked just below the cut can still surface.
	candidateFactor = 3
)

// Searcher provides semantic search over embedded chunks.
type Searcher struct {
	vectors       storage.VectorRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the similarity threshold for candidates.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		if min < -1 || min > 1 {
			return fmt.Errorf("%w: %g", ErrInvalidMinSimilarity, min)
		}
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(vectors storage.VectorRepository, provider ai.Provider, opts ...Option) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		vectors:       vectors,
		embedder:      provider.Embedder(),
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FindSimilar searches for chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor searches for chunks similar to the query with monitoring.
// The monitor receives callbacks at each stage of the search process.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if maxHits <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxHits, maxHits)
	}
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)

	// 1. Embed the query
	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(len(vector))

	// 2. Find candidate chunks
	matches, err := s.vectors.FindSimilar(ctx, vector, s.minSimilarity, maxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	ids := make([]uint64, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, uint64(match.Chunk.Id))
	}
	monitor.AfterSemanticSearch(ids)

	// 3. Score: similarity, plus a boost for verbatim matches
	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		score := match.Score
		if containsQueryTerms(match.Chunk.Content, query) {
			score += verbatimBoost
			monitor.VerbatimHit(match.Chunk, match.Score)
		} else {
			monitor.SemanticHit(match.Chunk, match.Score)
		}
		results = append(results, &core.SearchResult{
			Chunk: match.Chunk,
			Score: score,
		})
	}

	results = storage.RankResults(results, maxHits)
	monitor.Finish(results)

	s.logger.Debug("search finished", "query", query, "candidates", len(matches), "results", len(results))
	return results, nil
}
