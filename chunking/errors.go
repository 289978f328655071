package chunking

import "errors"

var (
	// ErrInvalidConfig indicates chunker settings that cannot produce chunks.
	ErrInvalidConfig = errors.New("invalid chunking config")

	// ErrUnknownEncoding indicates a tiktoken encoding name that could not be loaded.
	ErrUnknownEncoding = errors.New("unknown token encoding")
)
