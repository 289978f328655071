// Package mock provides test double implementations of AI service interfaces.
//
// MockEmbedder implements ai.BatchEmbedder; WithoutBatch exposes it as a plain
// ai.Embedder for exercising the per-chunk path. Tests can inject failures
// through the function fields and inspect call counts and batch sizes.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    if text == "bad" {
//	        return nil, ai.NewProviderError(ai.ErrRateLimited, nil)
//	    }
//	    return mock.Vector(text, 8), nil
//	}
//
//	sizes := embedder.BatchSizes()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockProvider: Wraps a MockEmbedder
package mock
