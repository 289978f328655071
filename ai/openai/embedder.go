package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/vectorit/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.BatchEmbedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder      embeddings.Embedder
	maxInputChars int
	logger        *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []openai.Option{
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	}
	if config.Dimensions > 0 {
		opts = append(opts, openai.WithEmbeddingDimensions(config.Dimensions))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}

	// Wrap in langchaingo embedder
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:      embedder,
		maxInputChars: config.MaxInputChars,
		logger:        slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.BatchEmbedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.BatchEmbedder, error) {
	return newEmbedder(config)
}

func (e *Embedder) checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ai.NewProviderError(ai.ErrEmptyInput, nil)
	}
	if len(text) > e.maxInputChars {
		return ai.NewProviderError(ai.ErrInputTooLarge,
			fmt.Errorf("%d characters exceeds limit of %d", len(text), e.maxInputChars))
	}
	return nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkInput(text); err != nil {
		return nil, err
	}
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, classify(err)
	}

	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ai.NewProviderError(ai.ErrUnexpectedResponse, fmt.Errorf("no embedding returned"))
	}

	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// The whole batch is rejected if any input is empty or too large.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if err := e.checkInput(text); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, classify(err)
	}

	if len(vectors) != len(texts) {
		return nil, ai.NewProviderError(ai.ErrUnexpectedResponse,
			fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts)))
	}

	return vectors, nil
}
