package embedding

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config controls how a chunk sequence is embedded.
type Config struct {
	// BatchSize is the number of chunks per provider call.
	BatchSize int
	// MaxRetries bounds how often a failed chunk is re-attempted.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay of the retry pass; it doubles per attempt.
	RetryBaseDelay time.Duration
	// BatchDelay pauses between batches. Zero disables the pause.
	BatchDelay time.Duration
	// MaxProcessingTime is the soft cutoff. Zero means unlimited.
	MaxProcessingTime time.Duration
	// NormalizeVectors scales every embedding to unit length.
	NormalizeVectors bool
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		MaxRetries:     3,
		RetryBaseDelay: 200 * time.Millisecond,
	}
}

// Validate checks that every setting is in range.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be non-negative, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryBaseDelay < 0 || c.BatchDelay < 0 || c.MaxProcessingTime < 0 {
		return fmt.Errorf("%w: durations must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Option configures a ChunkProcessor.
type Option func(*ChunkProcessor) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(p *ChunkProcessor) error {
		p.cfg = cfg
		return nil
	}
}

// WithBatchSize sets the number of chunks per provider call.
// Non-positive values keep the current setting.
func WithBatchSize(n int) Option {
	return func(p *ChunkProcessor) error {
		if n > 0 {
			p.cfg.BatchSize = n
		}
		return nil
	}
}

// WithMaxRetries sets the per-chunk retry bound.
func WithMaxRetries(n int) Option {
	return func(p *ChunkProcessor) error {
		p.cfg.MaxRetries = n
		return nil
	}
}

// WithRetryBaseDelay sets the first backoff delay of the retry pass.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(p *ChunkProcessor) error {
		p.cfg.RetryBaseDelay = d
		return nil
	}
}

// WithBatchDelay sets the pause between batches.
func WithBatchDelay(d time.Duration) Option {
	return func(p *ChunkProcessor) error {
		p.cfg.BatchDelay = d
		return nil
	}
}

// WithMaxProcessingTime sets the soft cutoff.
func WithMaxProcessingTime(d time.Duration) Option {
	return func(p *ChunkProcessor) error {
		p.cfg.MaxProcessingTime = d
		return nil
	}
}

// WithNormalizeVectors enables unit-length normalization of embeddings.
func WithNormalizeVectors(enabled bool) Option {
	return func(p *ChunkProcessor) error {
		p.cfg.NormalizeVectors = enabled
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *ChunkProcessor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}
