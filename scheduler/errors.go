package scheduler

import "errors"

var (
	// ErrTaskTerminal indicates an operation that needs a live task was given a finished one.
	ErrTaskTerminal = errors.New("task already finished")

	// ErrNotRetryable indicates RetryTask was called on a task with nothing failed.
	ErrNotRetryable = errors.New("task is not in a retryable state")

	// ErrInvalidConfig indicates an out-of-range scheduler setting.
	ErrInvalidConfig = errors.New("invalid scheduler config")
)
