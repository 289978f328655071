package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/vectorit/core"
)

// Config holds the cost model and the task defaults.
type Config struct {
	// ExecutionBudget is the platform's hard wall-clock limit per invocation.
	ExecutionBudget time.Duration
	// SafetyMargin is subtracted from ExecutionBudget to get the usable budget.
	SafetyMargin time.Duration
	// PerChunkCost is the estimated embedding time of one chunk.
	PerChunkCost time.Duration
	// BatchOverhead is the estimated fixed cost of one provider batch.
	BatchOverhead time.Duration

	DefaultPriority   core.Priority
	DefaultBatchSize  int
	DefaultMaxRetries int
}

// DefaultConfig returns a 26s budget with a 3s margin, which leaves 23s per task.
func DefaultConfig() Config {
	return Config{
		ExecutionBudget:   26 * time.Second,
		SafetyMargin:      3 * time.Second,
		PerChunkCost:      250 * time.Millisecond,
		BatchOverhead:     500 * time.Millisecond,
		DefaultPriority:   core.PriorityNormal,
		DefaultBatchSize:  10,
		DefaultMaxRetries: 3,
	}
}

// Budget is the usable time per task.
func (c Config) Budget() time.Duration {
	return c.ExecutionBudget - c.SafetyMargin
}

// Validate checks that every setting is in range.
func (c Config) Validate() error {
	if c.Budget() <= 0 {
		return fmt.Errorf("%w: safety margin %s leaves no budget out of %s", ErrInvalidConfig, c.SafetyMargin, c.ExecutionBudget)
	}
	if c.PerChunkCost < 0 || c.BatchOverhead < 0 {
		return fmt.Errorf("%w: costs must be non-negative", ErrInvalidConfig)
	}
	if c.DefaultBatchSize <= 0 {
		return fmt.Errorf("%w: default batch size must be positive", ErrInvalidConfig)
	}
	if c.DefaultMaxRetries < 0 {
		return fmt.Errorf("%w: default max retries must be non-negative", ErrInvalidConfig)
	}
	if !c.DefaultPriority.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, core.ErrInvalidPriority)
	}
	return nil
}

// Option configures a Scheduler.
type Option func(*Scheduler) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) error {
		s.cfg = cfg
		return nil
	}
}

// WithExecutionBudget sets the platform budget and the safety margin.
func WithExecutionBudget(budget, margin time.Duration) Option {
	return func(s *Scheduler) error {
		s.cfg.ExecutionBudget = budget
		s.cfg.SafetyMargin = margin
		return nil
	}
}

// WithCanceller forwards cancellation of in-flight tasks to c.
func WithCanceller(c Canceller) Option {
	return func(s *Scheduler) error {
		s.canceller = c
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}
