package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/vectorit/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T) *Embedder {
	t.Helper()
	e, err := newEmbedder(ai.NewConfig(
		ai.WithEmbeddingHost("http://127.0.0.1:1"),
		ai.WithMaxInputChars(10),
	))
	require.NoError(t, err)
	return e
}

func TestEmbedText_RejectsBadInput(t *testing.T) {
	e := newTestEmbedder(t)

	_, err := e.EmbedText(context.Background(), "   ")
	assert.ErrorIs(t, err, ai.ErrEmptyInput)
	assert.False(t, ai.IsRetryable(err))

	_, err = e.EmbedText(context.Background(), strings.Repeat("x", 11))
	assert.ErrorIs(t, err, ai.ErrInputTooLarge)
	assert.False(t, ai.IsRetryable(err))
}

func TestEmbedTexts_RejectsBadInput(t *testing.T) {
	e := newTestEmbedder(t)

	_, err := e.EmbedTexts(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ai.ErrEmptyInput)
	assert.Contains(t, err.Error(), "text 1")
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(&ai.Config{})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  error
		retryable bool
	}{
		{"invalid key", errors.New("error, status code: 401, message: invalid_api_key"), ai.ErrAuthentication, false},
		{"rate limit", errors.New("status code: 429, message: Rate limit reached"), ai.ErrRateLimited, true},
		{"quota", errors.New("You exceeded your current quota"), ai.ErrRateLimited, false},
		{"deadline", context.DeadlineExceeded, ai.ErrTimeout, true},
		{"context length", errors.New("This model's maximum context length is 8192 tokens"), ai.ErrInputTooLarge, false},
		{"bad request", errors.New("status code: 400, bad request"), ai.ErrInvalidRequest, false},
		{"server error", errors.New("status code: 503, service unavailable"), ai.ErrProviderUnavailable, true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), ai.ErrProviderUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)

			var pe *ai.ProviderError
			require.ErrorAs(t, got, &pe)
			assert.ErrorIs(t, got, tt.wantKind)
			assert.Equal(t, tt.retryable, pe.Retryable)
			assert.Equal(t, tt.retryable, ai.IsRetryable(got))
		})
	}

	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	assert.False(t, ai.IsRetryable(classify(context.Canceled)))
}
