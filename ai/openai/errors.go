package openai

import (
	"context"
	"errors"

	"github.com/poiesic/vectorit/ai"
	"github.com/tmc/langchaingo/llms"
)

// classify maps a client error onto the ai error taxonomy.
// Cancellation passes through untouched so callers can detect it.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	mapped := llms.OpenAIErrorMapper().Map(err)
	switch {
	case llms.IsCanceledError(mapped):
		return err
	case llms.IsAuthenticationError(mapped):
		return ai.NewProviderError(ai.ErrAuthentication, mapped)
	case llms.IsRateLimitError(mapped):
		return ai.NewProviderError(ai.ErrRateLimited, mapped)
	case llms.IsQuotaExceededError(mapped):
		// Exhausted quota does not recover within a task's lifetime.
		return &ai.ProviderError{Kind: ai.ErrRateLimited, Err: mapped}
	case llms.IsTimeoutError(mapped):
		return ai.NewProviderError(ai.ErrTimeout, mapped)
	case llms.IsTokenLimitError(mapped):
		return ai.NewProviderError(ai.ErrInputTooLarge, mapped)
	case llms.IsInvalidRequestError(mapped), llms.IsContentFilterError(mapped), llms.IsNotImplementedError(mapped):
		return ai.NewProviderError(ai.ErrInvalidRequest, mapped)
	default:
		// Unknown and network failures: 5xx, resets, not-found model while a server restarts.
		return ai.NewProviderError(ai.ErrProviderUnavailable, mapped)
	}
}
