package queue

import "errors"

var (
	// ErrTaskNotFound indicates no task with the given ID exists.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotRunnable indicates an attempt to enqueue a parent task.
	ErrNotRunnable = errors.New("parent tasks cannot be enqueued")

	// ErrClosed indicates the queue was used after Close.
	ErrClosed = errors.New("queue closed")
)
