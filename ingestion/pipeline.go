package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/vectorit/chunking"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/extract"
	"github.com/poiesic/vectorit/processor"
	"github.com/poiesic/vectorit/scheduler"
	"github.com/poiesic/vectorit/source"
	"github.com/poiesic/vectorit/storage"
)

// Pipeline orchestrates document ingestion and result persistence.
type Pipeline struct {
	processor.NoopObserver

	scheduler *scheduler.Scheduler
	vectors   storage.VectorRepository
	store     source.Store
	extractor *extract.Extractor
	chunker   *chunking.Chunker
	logger    *slog.Logger
	now       func() time.Time
}

var _ processor.Observer = (*Pipeline)(nil)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithSource sets the object store used by IngestObject.
func WithSource(store source.Store) Option {
	return func(p *Pipeline) error {
		p.store = store
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return fmt.Errorf("chunker cannot be nil")
		}
		p.chunker = c
		return nil
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(p *Pipeline) error {
		if e == nil {
			return fmt.Errorf("extractor cannot be nil")
		}
		p.extractor = e
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(sched *scheduler.Scheduler, vectors storage.VectorRepository, opts ...Option) (*Pipeline, error) {
	if sched == nil {
		return nil, ErrSchedulerRequired
	}
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}

	p := &Pipeline{
		scheduler: sched,
		vectors:   vectors,
		logger:    slog.Default(),
		now:       time.Now,
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	// Create collaborators after options are applied so they get the final logger
	if p.extractor == nil {
		e, err := extract.New(extract.WithLogger(p.logger))
		if err != nil {
			return nil, err
		}
		p.extractor = e
	}
	if p.chunker == nil {
		c, err := chunking.New()
		if err != nil {
			return nil, err
		}
		p.chunker = c
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// IngestOptions holds optional parameters for ingestion.
type IngestOptions struct {
	Format     string         // Declared format or MIME type; detected when empty
	Priority   *core.Priority // Scheduler default when nil
	BatchSize  int
	MaxRetries *int // Scheduler default when nil
	Timeout    time.Duration
	UserID     string
}

// IngestResult reports what was scheduled for a document.
type IngestResult struct {
	Key      string
	Format   extract.Format
	FileType chunking.FileType
	Chunks   int
	Removed  int // Vectors deleted from a previous ingestion of the same key
	Schedule *scheduler.ScheduleResult
}

// IngestObject fetches key from the object store, extracts its text and
// schedules it for embedding.
func (p *Pipeline) IngestObject(ctx context.Context, key string, opts *IngestOptions) (*IngestResult, error) {
	if p.store == nil {
		return nil, ErrSourceRequired
	}
	if opts == nil {
		opts = &IngestOptions{}
	}

	data, err := p.store.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	doc, err := p.extractor.Extract(ctx, key, opts.Format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", key, err)
	}
	return p.IngestDocument(ctx, doc, opts)
}

// IngestDocument chunks an extracted document and schedules it. Vectors
// stored for the same key by an earlier ingestion are removed first.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *extract.Document, opts *IngestOptions) (*IngestResult, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}

	chunks := p.chunker.Chunk(doc.Text, string(doc.FileType), doc.Size)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunks, doc.Name)
	}

	removed, err := p.vectors.DeleteFile(ctx, doc.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to clear vectors for %s: %w", doc.Name, err)
	}

	sched, err := p.scheduler.ScheduleTask(ctx, scheduler.Request{
		FileName:   doc.Name,
		FileType:   string(doc.FileType),
		FileSize:   doc.Size,
		Chunks:     chunks,
		Priority:   opts.Priority,
		BatchSize:  opts.BatchSize,
		MaxRetries: opts.MaxRetries,
		Timeout:    opts.Timeout,
		UserID:     opts.UserID,
		Source:     doc.Name,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("document ingested",
		"key", doc.Name, "format", doc.Format, "chunks", len(chunks),
		"task", sched.MainTaskID, "split", sched.WasSplit, "removed", removed)
	return &IngestResult{
		Key:      doc.Name,
		Format:   doc.Format,
		FileType: doc.FileType,
		Chunks:   len(chunks),
		Removed:  removed,
		Schedule: sched,
	}, nil
}
