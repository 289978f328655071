package storage

import (
	"context"

	"github.com/poiesic/vectorit/core"
)

// VectorRepository is the sole writer of durable vector records.
// Implementations must be thread-safe and support concurrent access.
type VectorRepository interface {
	// StoreChunks upserts the embedded chunks of one file. Each record's ID is
	// derived from the file key and chunk index, so storing the same chunk
	// twice overwrites it. Sets FileKey, Id and InsertedAt on every chunk.
	StoreChunks(ctx context.Context, fileKey string, chunks []*core.EmbeddedChunk) error

	// DeleteFile removes every record of a file and returns how many were removed.
	DeleteFile(ctx context.Context, fileKey string) (int, error)

	// GetChunks returns a file's records ordered by chunk index.
	GetChunks(ctx context.Context, fileKey string) ([]*core.EmbeddedChunk, error)

	// ListFiles returns the keys of every file with stored chunks, sorted.
	ListFiles(ctx context.Context) ([]string, error)

	// FindSimilar finds chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results.
	// Results are ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
