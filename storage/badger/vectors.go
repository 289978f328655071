package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Similarity search is a full scan, which suits local and test deployments.
type VectorRepository struct {
	backend *Backend
	owned   bool
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a repository stored in backend. Closing the
// repository does not close the backend.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{backend: backend}
}

// OpenVectorRepository opens a repository in its own database at path.
func OpenVectorRepository(path string, opts ...BackendOption) (storage.VectorRepository, error) {
	backend, err := OpenBackend(path, false, opts...)
	if err != nil {
		return nil, err
	}
	return &VectorRepository{backend: backend, owned: true}, nil
}

func (r *VectorRepository) checkOpen() error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// StoreChunks upserts the chunks of a file.
func (r *VectorRepository) StoreChunks(ctx context.Context, fileKey string, chunks []*core.EmbeddedChunk) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if fileKey == "" {
		return fmt.Errorf("%w: empty file key", storage.ErrInvalidQuery)
	}
	now := time.Now().UTC()
	return r.backend.WriteBatch(func(wb *badger.WriteBatch) error {
		for _, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk.FileKey = fileKey
			chunk.Id = core.EmbeddedChunkID(fileKey, chunk.ChunkIndex)
			if chunk.InsertedAt.IsZero() {
				chunk.InsertedAt = now
			}
			if err := wb.Set(makeVectorKey(fileKey, chunk.ChunkIndex), storage.MarshalEmbeddedChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteFile removes every chunk of a file.
func (r *VectorRepository) DeleteFile(ctx context.Context, fileKey string) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeFilePrefix(fileKey)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	err = r.backend.WriteBatch(func(wb *badger.WriteBatch) error {
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// GetChunks returns a file's chunks ordered by chunk index.
func (r *VectorRepository) GetChunks(ctx context.Context, fileKey string) ([]*core.EmbeddedChunk, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	var chunks []*core.EmbeddedChunk
	err := r.scan(ctx, makeFilePrefix(fileKey), func(chunk *core.EmbeddedChunk) {
		chunks = append(chunks, chunk)
	})
	return chunks, err
}

// ListFiles returns every file key with at least one stored chunk.
// Keys sort by file key, so duplicates are adjacent.
func (r *VectorRepository) ListFiles(ctx context.Context) ([]string, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	var files []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			fileKey, ok := parseVectorKey(iter.Item().Key())
			if !ok {
				continue
			}
			if n := len(files); n == 0 || files[n-1] != fileKey {
				files = append(files, fileKey)
			}
		}
		return nil
	}, false)
	return files, err
}

// FindSimilar scores every stored chunk against vector by cosine similarity.
func (r *VectorRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.SearchResult
	err := r.scan(ctx, []byte(vectorPrefix), func(chunk *core.EmbeddedChunk) {
		// Skip records without embeddings
		if len(chunk.Vector) == 0 {
			return
		}
		similarity := storage.CosineSimilarity(vector, chunk.Vector)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{Chunk: chunk, Score: similarity})
		}
	})
	if err != nil {
		return nil, err
	}
	return storage.RankResults(results, limit), nil
}

func (r *VectorRepository) scan(ctx context.Context, prefix []byte, fn func(*core.EmbeddedChunk)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.EmbeddedChunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalEmbeddedChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			fn(chunk)
		}
		return nil
	}, false)
}

// Close closes the database when the repository opened it.
func (r *VectorRepository) Close() error {
	if r.owned {
		return r.backend.Close()
	}
	return nil
}
