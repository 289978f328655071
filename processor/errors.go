package processor

import (
	"errors"
	"fmt"

	"github.com/poiesic/vectorit/embedding"
)

var (
	// ErrAlreadyRunning indicates Start was called on a running processor.
	ErrAlreadyRunning = errors.New("processor already running")

	// ErrTaskTimeout indicates a task did not finish within its timeout.
	ErrTaskTimeout = errors.New("task timed out")

	// ErrAllEmbeddingsFailed indicates a task produced no embedding at all.
	ErrAllEmbeddingsFailed = errors.New("all embeddings failed")

	// ErrStopped is the cancellation cause of tasks interrupted by Stop.
	ErrStopped = fmt.Errorf("processor stopped: %w", embedding.ErrCancelled)

	// ErrInvalidConfig indicates an out-of-range processor setting.
	ErrInvalidConfig = errors.New("invalid processor config")
)
