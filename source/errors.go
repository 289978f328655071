package source

import "errors"

var (
	// ErrNotFound indicates no object exists under the key.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey indicates an empty key or one escaping the store root.
	ErrInvalidKey = errors.New("invalid object key")

	// ErrTooLarge indicates an object exceeding the store's size limit.
	ErrTooLarge = errors.New("object too large")

	// ErrInvalidConfig indicates missing connection settings.
	ErrInvalidConfig = errors.New("invalid source config")
)
