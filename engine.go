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

package vectorit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/ai/openai"
	"github.com/poiesic/vectorit/chunking"
	"github.com/poiesic/vectorit/config"
	"github.com/poiesic/vectorit/events"
	"github.com/poiesic/vectorit/extract"
	"github.com/poiesic/vectorit/ingestion"
	"github.com/poiesic/vectorit/processor"
	"github.com/poiesic/vectorit/queue"
	"github.com/poiesic/vectorit/scheduler"
	"github.com/poiesic/vectorit/search"
	"github.com/poiesic/vectorit/source"
	"github.com/poiesic/vectorit/storage"
	"github.com/poiesic/vectorit/storage/badger"
	"github.com/poiesic/vectorit/storage/postgres"
	redisqueue "github.com/poiesic/vectorit/storage/redis"
)

// Engine wires the queue, vector repository, embedding provider, scheduler,
// processor, ingestion pipeline and searcher from one configuration.
type Engine struct {
	cfg       *config.Config
	backend   *badger.Backend
	queue     queue.Provider
	vectors   storage.VectorRepository
	provider  ai.Provider
	store     source.Store
	publisher *events.Publisher
	extractor *extract.Extractor
	scheduler *scheduler.Scheduler
	processor *processor.Processor
	pipeline  *ingestion.Pipeline
	searcher  *search.Searcher
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	cfg           *config.Config
	provider      ai.Provider
	store         source.Store
	observers     []processor.Observer
	meterProvider metric.MeterProvider
	logger        *slog.Logger
}

// WithConfig sets the configuration. Default is config.Default().
func WithConfig(cfg *config.Config) EngineOption {
	return func(o *engineOptions) {
		o.cfg = cfg
	}
}

// WithProvider uses p instead of the provider named by the configuration.
// The engine takes ownership and closes it.
func WithProvider(p ai.Provider) EngineOption {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithSource uses store instead of the object store named by the configuration.
func WithSource(store source.Store) EngineOption {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithObserver registers an additional processor observer.
func WithObserver(obs processor.Observer) EngineOption {
	return func(o *engineOptions) {
		o.observers = append(o.observers, obs)
	}
}

// WithMeterProvider sets the meter provider for processor metrics.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(o *engineOptions) {
		o.meterProvider = mp
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// processorCanceller forwards scheduler cancellations to the engine's
// processor, which is created after the scheduler.
type processorCanceller struct {
	e *Engine
}

func (c processorCanceller) CancelTask(id string) bool {
	if c.e.processor == nil {
		return false
	}
	return c.e.processor.CancelTask(id)
}

// NewEngine builds every component. Resources opened before a failure are
// released.
func NewEngine(ctx context.Context, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.cfg == nil {
		options.cfg = config.Default()
	} else if err := options.cfg.Validate(); err != nil {
		return nil, err
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{
		cfg:      options.cfg,
		provider: options.provider,
		store:    options.store,
		logger:   options.logger,
	}
	if err := e.build(ctx, options); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(ctx context.Context, options *engineOptions) error {
	cfg := e.cfg
	if err := e.openStorage(ctx); err != nil {
		return err
	}

	if e.provider == nil {
		provider, err := openai.NewProvider(cfg.AI.ToAI())
		if err != nil {
			return fmt.Errorf("failed to create AI provider: %w", err)
		}
		e.provider = provider
	}

	if e.store == nil {
		store, err := newStore(ctx, cfg.Source, e.logger)
		if err != nil {
			return fmt.Errorf("failed to open object store: %w", err)
		}
		e.store = store
	}

	chunkOpts, err := cfg.Chunking.Options()
	if err != nil {
		return err
	}
	chunker, err := chunking.New(append(chunkOpts, chunking.WithLogger(e.logger))...)
	if err != nil {
		return err
	}
	if e.extractor, err = extract.New(extract.WithLogger(e.logger)); err != nil {
		return err
	}

	schedCfg, err := cfg.Scheduler.ToScheduler()
	if err != nil {
		return err
	}
	e.scheduler, err = scheduler.New(e.queue,
		scheduler.WithConfig(schedCfg),
		scheduler.WithCanceller(processorCanceller{e: e}),
		scheduler.WithLogger(e.logger.With("component", "scheduler")))
	if err != nil {
		return err
	}

	e.pipeline, err = ingestion.NewPipeline(e.scheduler, e.vectors,
		ingestion.WithSource(e.store),
		ingestion.WithChunker(chunker),
		ingestion.WithExtractor(e.extractor),
		ingestion.WithLogger(e.logger))
	if err != nil {
		return err
	}

	procOpts := append(cfg.ProcessorOptions(),
		processor.WithObserver(e.pipeline),
		processor.WithLogger(e.logger.With("component", "processor")))
	if cfg.Events.Enabled {
		e.publisher, err = events.Connect(cfg.Events.ToEvents(), events.WithLogger(e.logger))
		if err != nil {
			return err
		}
		procOpts = append(procOpts, processor.WithObserver(e.publisher))
	}
	for _, obs := range options.observers {
		procOpts = append(procOpts, processor.WithObserver(obs))
	}
	if options.meterProvider != nil {
		procOpts = append(procOpts, processor.WithMeterProvider(options.meterProvider))
	}
	e.processor, err = processor.New(e.queue, e.provider.Embedder(), procOpts...)
	if err != nil {
		return err
	}

	e.searcher, err = search.NewSearcher(e.vectors, e.provider,
		search.WithMinSimilarity(float32(cfg.Search.MinSimilarity)),
		search.WithLogger(e.logger))
	return err
}

func (e *Engine) openStorage(ctx context.Context) error {
	cfg := e.cfg
	if cfg.Queue.Backend == "badger" || cfg.Storage.Backend == "badger" {
		backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.Path == "", badger.WithLogger(e.logger))
		if err != nil {
			return fmt.Errorf("failed to open badger at %q: %w", cfg.Storage.Path, err)
		}
		e.backend = backend
	}

	switch cfg.Queue.Backend {
	case "memory":
		e.queue = queue.NewMemoryQueue()
	case "badger":
		q, err := badger.NewTaskQueue(e.backend)
		if err != nil {
			return err
		}
		e.queue = q
	case "redis":
		q, err := redisqueue.Dial(ctx, cfg.Queue.RedisURL, redisqueue.WithPrefix(cfg.Queue.RedisPrefix))
		if err != nil {
			return err
		}
		e.queue = q
	}

	switch cfg.Storage.Backend {
	case "badger":
		e.vectors = badger.NewVectorRepository(e.backend)
	case "postgres":
		pgOpts := []postgres.Option{postgres.WithTable(cfg.Storage.Table)}
		if cfg.AI.Dimensions > 0 {
			pgOpts = append(pgOpts, postgres.WithDimensions(cfg.AI.Dimensions))
		}
		repo, err := postgres.Connect(ctx, cfg.Storage.DSN, pgOpts...)
		if err != nil {
			return err
		}
		e.vectors = repo
	}
	return nil
}

func newStore(ctx context.Context, cfg config.SourceConfig, logger *slog.Logger) (source.Store, error) {
	opts := []source.Option{source.WithMaxSize(cfg.MaxSize), source.WithLogger(logger)}
	switch cfg.Backend {
	case "minio":
		return source.NewMinioStore(ctx, cfg.ToMinio(), opts...)
	case "s3":
		return source.NewS3Store(ctx, cfg.ToS3(), opts...)
	default:
		return source.NewFileStore(cfg.Dir, opts...)
	}
}

// Start launches the background processor.
func (e *Engine) Start(ctx context.Context) error {
	return e.processor.Start(ctx)
}

// Stop halts the background processor, cancelling tasks in flight.
func (e *Engine) Stop() {
	if e.processor != nil {
		e.processor.Stop()
	}
}

// WaitIdle blocks until no task is running or pending.
func (e *Engine) WaitIdle(ctx context.Context) error {
	return e.processor.WaitIdle(ctx)
}

// Close stops processing and releases every resource.
func (e *Engine) Close() error {
	e.Stop()

	var errs []error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			e.logger.Error("error closing "+name, "err", err)
			errs = append(errs, err)
		}
	}
	if e.publisher != nil {
		closeOne("event publisher", e.publisher.Close)
	}
	if e.provider != nil {
		closeOne("AI provider", e.provider.Close)
	}
	if e.store != nil {
		closeOne("object store", e.store.Close)
	}
	if e.vectors != nil {
		closeOne("vector repository", e.vectors.Close)
	}
	if e.queue != nil {
		closeOne("task queue", e.queue.Close)
	}
	if e.backend != nil {
		closeOne("backend storage", e.backend.Close)
	}
	return errors.Join(errs...)
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

func (e *Engine) Queue() queue.Provider {
	return e.queue
}

func (e *Engine) Vectors() storage.VectorRepository {
	return e.vectors
}

func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.scheduler
}

func (e *Engine) Processor() *processor.Processor {
	return e.processor
}

func (e *Engine) Pipeline() *ingestion.Pipeline {
	return e.pipeline
}

func (e *Engine) Searcher() *search.Searcher {
	return e.searcher
}
