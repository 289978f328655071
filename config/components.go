package config

import (
	"fmt"

	"github.com/poiesic/vectorit/ai"
	"github.com/poiesic/vectorit/chunking"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/embedding"
	"github.com/poiesic/vectorit/events"
	"github.com/poiesic/vectorit/processor"
	"github.com/poiesic/vectorit/scheduler"
	"github.com/poiesic/vectorit/source"
)

// ToAI converts the section to an ai.Config.
func (c AIConfig) ToAI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Host),
		ai.WithEmbeddingModel(c.Model),
		ai.WithAPIKey(c.APIKey),
		ai.WithDimensions(c.Dimensions),
		ai.WithMaxInputChars(c.MaxInputChars),
		ai.WithBatchSize(c.BatchSize),
	)
}

// Options converts the section to chunker options. The tiktoken tokenizer
// loads its encoding here.
func (c ChunkingConfig) Options() ([]chunking.Option, error) {
	opts := []chunking.Option{
		chunking.WithMaxTokens(c.MaxTokens),
		chunking.WithOverlapTokens(c.OverlapTokens),
		chunking.WithMinChunkSize(c.MinChunkSize),
		chunking.WithCharsPerToken(c.CharsPerToken),
		chunking.WithSmartChunking(c.SmartChunking),
		chunking.WithPreserveStructure(c.PreserveStructure),
	}
	if c.Tokenizer == "tiktoken" {
		est, err := chunking.NewTiktokenEstimator(c.Encoding)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chunking.WithEstimator(est))
	}
	return opts, nil
}

// ToScheduler converts the section to a scheduler.Config.
func (c SchedulerConfig) ToScheduler() (scheduler.Config, error) {
	priority, err := core.ParsePriority(c.DefaultPriority)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("%w: scheduler.default_priority: %w", ErrInvalidConfig, err)
	}
	cfg := scheduler.Config{
		ExecutionBudget:   c.ExecutionBudget,
		SafetyMargin:      c.SafetyMargin,
		PerChunkCost:      c.PerChunkCost,
		BatchOverhead:     c.BatchOverhead,
		DefaultPriority:   priority,
		DefaultBatchSize:  c.DefaultBatchSize,
		DefaultMaxRetries: c.DefaultMaxRetries,
	}
	return cfg, cfg.Validate()
}

// ToEmbedding returns the embedding settings. Batch size and retries come
// from the scheduler defaults so that tasks without overrides match them.
func (c *Config) ToEmbedding() embedding.Config {
	return embedding.Config{
		BatchSize:        c.Scheduler.DefaultBatchSize,
		MaxRetries:       c.Scheduler.DefaultMaxRetries,
		RetryBaseDelay:   c.Processor.RetryBaseDelay,
		BatchDelay:       c.Processor.BatchDelay,
		NormalizeVectors: c.Processor.NormalizeVectors,
	}
}

// ProcessorOptions converts the processor section to options.
func (c *Config) ProcessorOptions() []processor.Option {
	return []processor.Option{
		processor.WithMaxConcurrentTasks(c.Processor.MaxConcurrentTasks),
		processor.WithPollInterval(c.Processor.PollInterval),
		processor.WithTaskTimeout(c.Processor.TaskTimeout),
		processor.WithSoftCutoffRatio(c.Processor.SoftCutoffRatio),
		processor.WithEmbeddingConfig(c.ToEmbedding()),
	}
}

// ToMinio converts the section to MinIO settings.
func (c SourceConfig) ToMinio() source.MinioConfig {
	return source.MinioConfig{
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Region:    c.Region,
		Bucket:    c.Bucket,
	}
}

// ToS3 converts the section to S3 settings.
func (c SourceConfig) ToS3() source.S3Config {
	return source.S3Config{
		Region:       c.Region,
		Bucket:       c.Bucket,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		Endpoint:     c.Endpoint,
		UsePathStyle: c.UsePathStyle,
	}
}

// ToEvents converts the section to a NATS publisher configuration.
func (c EventsConfig) ToEvents() events.Config {
	cfg := events.DefaultConfig()
	cfg.URL = c.NATSURL
	cfg.SubjectPrefix = c.Subject
	cfg.PublishProgress = c.Progress
	return cfg
}
