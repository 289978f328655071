// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package postgres stores embedded chunks in PostgreSQL with the pgvector
// extension, for deployments that need similarity search over large corpora.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/storage"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "vectorit_chunks"

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}(\.[a-zA-Z_][a-zA-Z0-9_]{0,62})?$`)

// Option configures a Repository.
type Option func(*Repository) error

// WithTable sets the (optionally schema-qualified) table name.
func WithTable(name string) Option {
	return func(r *Repository) error {
		if !identifierRe.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
		r.table = name
		return nil
	}
}

// WithDimensions fixes the vector column width used by EnsureSchema.
// Zero leaves the column unconstrained.
func WithDimensions(dims int) Option {
	return func(r *Repository) error {
		if dims < 0 {
			return fmt.Errorf("dimensions must be non-negative, got %d", dims)
		}
		r.dims = dims
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// Repository implements storage.VectorRepository on pgvector.
type Repository struct {
	pool   *pgxpool.Pool
	owned  bool
	table  string
	dims   int
	logger *slog.Logger
}

var _ storage.VectorRepository = (*Repository)(nil)

// NewRepository creates a repository on an existing pool. Closing the
// repository does not close the pool.
func NewRepository(pool *pgxpool.Pool, opts ...Option) (*Repository, error) {
	r := &Repository{
		pool:   pool,
		table:  DefaultTable,
		logger: slog.Default().With("component", "pgvector"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Connect opens a pool for dsn, creates the schema if needed and returns a
// repository that owns the pool.
func Connect(ctx context.Context, dsn string, opts ...Option) (storage.VectorRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	r, err := NewRepository(pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	r.owned = true
	if err := r.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) schemaSQL() []string {
	column := "vector"
	if r.dims > 0 {
		column = fmt.Sprintf("vector(%d)", r.dims)
	}
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	file_key TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	start_pos INTEGER NOT NULL,
	end_pos INTEGER NOT NULL,
	chunk_type TEXT NOT NULL,
	heading TEXT NOT NULL DEFAULT '',
	heading_level INTEGER NOT NULL DEFAULT 0,
	new_section BOOLEAN NOT NULL DEFAULT FALSE,
	declaration TEXT NOT NULL DEFAULT '',
	extra JSONB,
	embedding %s NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL,
	UNIQUE (file_key, chunk_index)
)`, r.table, column),
	}
}

// EnsureSchema creates the pgvector extension and the chunk table.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range r.schemaSQL() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

const chunkColumns = "file_key, chunk_index, content, token_count, start_pos, end_pos, chunk_type, heading, heading_level, new_section, declaration, extra, embedding::text, inserted_at"

func (r *Repository) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (id, file_key, chunk_index, content, token_count, start_pos, end_pos,
	chunk_type, heading, heading_level, new_section, declaration, extra, embedding, inserted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::vector, $15)
ON CONFLICT (id) DO UPDATE SET
	content = EXCLUDED.content, token_count = EXCLUDED.token_count,
	start_pos = EXCLUDED.start_pos, end_pos = EXCLUDED.end_pos,
	chunk_type = EXCLUDED.chunk_type, heading = EXCLUDED.heading,
	heading_level = EXCLUDED.heading_level, new_section = EXCLUDED.new_section,
	declaration = EXCLUDED.declaration, extra = EXCLUDED.extra,
	embedding = EXCLUDED.embedding, inserted_at = EXCLUDED.inserted_at`, r.table)
}

func (r *Repository) similarSQL() string {
	return fmt.Sprintf(`SELECT %s, 1 - (embedding <=> $1::vector) AS similarity
FROM %s
WHERE 1 - (embedding <=> $1::vector) >= $2
ORDER BY embedding <=> $1::vector
LIMIT $3`, chunkColumns, r.table)
}

// StoreChunks upserts the chunks of a file in one batch.
func (r *Repository) StoreChunks(ctx context.Context, fileKey string, chunks []*core.EmbeddedChunk) error {
	if fileKey == "" {
		return fmt.Errorf("%w: empty file key", storage.ErrInvalidQuery)
	}
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	query := r.upsertSQL()
	batch := &pgx.Batch{}
	for _, c := range chunks {
		c.FileKey = fileKey
		c.Id = core.EmbeddedChunkID(fileKey, c.ChunkIndex)
		if c.InsertedAt.IsZero() {
			c.InsertedAt = now
		}
		batch.Queue(query,
			int64(c.Id), c.FileKey, c.ChunkIndex, c.Content, c.TokenCount, c.Start, c.End,
			string(c.Metadata.Type), c.Metadata.Heading, c.Metadata.Level, c.Metadata.IsNewSection,
			c.Metadata.Declaration, c.Metadata.Extra, formatVector(c.Vector), c.InsertedAt)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to store %d chunks for %s: %w", len(chunks), fileKey, err)
	}
	r.logger.Debug("stored chunks", "file_key", fileKey, "count", len(chunks))
	return nil
}

// DeleteFile removes every chunk of a file.
func (r *Repository) DeleteFile(ctx context.Context, fileKey string) (int, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE file_key = $1", r.table), fileKey)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %s: %w", fileKey, err)
	}
	return int(tag.RowsAffected()), nil
}

// GetChunks returns a file's chunks ordered by chunk index.
func (r *Repository) GetChunks(ctx context.Context, fileKey string) ([]*core.EmbeddedChunk, error) {
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE file_key = $1 ORDER BY chunk_index", chunkColumns, r.table),
		fileKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.EmbeddedChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ListFiles returns the distinct file keys in the table.
func (r *Repository) ListFiles(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf("SELECT DISTINCT file_key FROM %s ORDER BY file_key", r.table))
	if err != nil {
		return nil, err
	}
	files, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// FindSimilar ranks chunks by cosine similarity using pgvector's <=> operator.
func (r *Repository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	rows, err := r.pool.Query(ctx, r.similarSQL(), formatVector(vector), float64(minSimilarity), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.SearchResult
	for rows.Next() {
		var similarity float64
		c, err := scanChunk(rows, &similarity)
		if err != nil {
			return nil, err
		}
		results = append(results, &core.SearchResult{Chunk: c, Score: float32(similarity)})
	}
	return results, rows.Err()
}

func scanChunk(rows pgx.Rows, extra ...any) (*core.EmbeddedChunk, error) {
	var (
		c         core.EmbeddedChunk
		chunkType string
		embedding string
	)
	dest := append([]any{
		&c.FileKey, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.Start, &c.End,
		&chunkType, &c.Metadata.Heading, &c.Metadata.Level, &c.Metadata.IsNewSection,
		&c.Metadata.Declaration, &c.Metadata.Extra, &embedding, &c.InsertedAt,
	}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	vector, err := parseVector(embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	c.Vector = vector
	c.Metadata.Type = core.ChunkType(chunkType)
	c.Id = core.EmbeddedChunkID(c.FileKey, c.ChunkIndex)
	c.InsertedAt = c.InsertedAt.UTC()
	return &c, nil
}

// Close closes the pool when the repository opened it.
func (r *Repository) Close() error {
	if r.owned {
		r.pool.Close()
	}
	return nil
}
