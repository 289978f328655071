package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// DefaultMaxSize bounds the bytes read for one object.
const DefaultMaxSize = 64 << 20

// Store resolves object keys to raw bytes. Fetches are not retried.
type Store interface {
	// Fetch returns the object's contents, ErrNotFound, or ErrTooLarge.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases resources.
	Close() error
}

// options are shared by every Store implementation.
type options struct {
	maxSize int64
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*options) error

// WithMaxSize sets the largest object Fetch will read.
func WithMaxSize(n int64) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("%w: max size must be positive", ErrInvalidConfig)
		}
		o.maxSize = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		o.logger = logger
		return nil
	}
}

func newOptions(component string, opts []Option) (options, error) {
	o := options{
		maxSize: DefaultMaxSize,
		logger:  slog.Default().With("component", component),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return o, err
		}
	}
	return o, nil
}

// readLimited reads r fully, failing once more than limit bytes arrive.
func readLimited(r io.Reader, key string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, key, limit)
	}
	return data, nil
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}
