package reembed

import "errors"

var (
	// ErrIncompleteEmbedding is returned when some chunks of a file could not
	// be embedded. The file's stored vectors are left unchanged.
	ErrIncompleteEmbedding = errors.New("file only partially re-embedded")
)
