package processor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/poiesic/vectorit/embedding"
)

// Config controls the polling loop and task execution.
type Config struct {
	// MaxConcurrentTasks bounds the number of tasks executing at once.
	MaxConcurrentTasks int
	// PollInterval is the time between queue polls.
	PollInterval time.Duration
	// TaskTimeout applies to tasks that carry no timeout of their own.
	TaskTimeout time.Duration
	// SoftCutoffRatio is the fraction of the timeout after which no new batch starts.
	SoftCutoffRatio float64
}

// DefaultConfig returns three concurrent tasks polled every second with a 23s timeout.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 3,
		PollInterval:       time.Second,
		TaskTimeout:        23 * time.Second,
		SoftCutoffRatio:    0.85,
	}
}

// Validate checks that every setting is in range.
func (c Config) Validate() error {
	if c.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("%w: max concurrent tasks must be positive, got %d", ErrInvalidConfig, c.MaxConcurrentTasks)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.TaskTimeout <= 0 {
		return fmt.Errorf("%w: task timeout must be positive", ErrInvalidConfig)
	}
	if c.SoftCutoffRatio <= 0 || c.SoftCutoffRatio > 1 {
		return fmt.Errorf("%w: soft cutoff ratio must be in (0,1], got %g", ErrInvalidConfig, c.SoftCutoffRatio)
	}
	return nil
}

// Option configures a Processor.
type Option func(*Processor) error

// WithMaxConcurrentTasks sets the concurrency bound.
func WithMaxConcurrentTasks(n int) Option {
	return func(p *Processor) error {
		p.cfg.MaxConcurrentTasks = n
		return nil
	}
}

// WithPollInterval sets the time between queue polls.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) error {
		p.cfg.PollInterval = d
		return nil
	}
}

// WithTaskTimeout sets the timeout for tasks without one.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Processor) error {
		p.cfg.TaskTimeout = d
		return nil
	}
}

// WithSoftCutoffRatio sets the fraction of the timeout after which a task
// stops starting new batches.
func WithSoftCutoffRatio(r float64) Option {
	return func(p *Processor) error {
		p.cfg.SoftCutoffRatio = r
		return nil
	}
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(p *Processor) error {
		if o == nil {
			return errors.New("observer cannot be nil")
		}
		p.observers = append(p.observers, o)
		return nil
	}
}

// WithEmbeddingConfig sets the base embedding configuration. Batch size and
// retries are still taken from each task when set.
func WithEmbeddingConfig(cfg embedding.Config) Option {
	return func(p *Processor) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.embedCfg = cfg
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Processor) error {
		if mp == nil {
			return errors.New("meter provider cannot be nil")
		}
		p.meterProvider = mp
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}
