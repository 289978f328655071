package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. VECTORIT_AI_API_KEY.
const EnvPrefix = "VECTORIT"

// ErrInvalidConfig is returned when a setting is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete application configuration.
type Config struct {
	AI        AIConfig        `mapstructure:"ai" yaml:"ai"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Source    SourceConfig    `mapstructure:"source" yaml:"source"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// AIConfig selects and configures the embedding provider.
type AIConfig struct {
	Provider      string `mapstructure:"provider" yaml:"provider"` // openai; other providers are injected in code
	Host          string `mapstructure:"host" yaml:"host"`
	Model         string `mapstructure:"model" yaml:"model"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	Dimensions    int    `mapstructure:"dimensions" yaml:"dimensions"`
	MaxInputChars int    `mapstructure:"max_input_chars" yaml:"max_input_chars"`
	BatchSize     int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// ChunkingConfig holds the chunker settings.
type ChunkingConfig struct {
	MaxTokens         int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	OverlapTokens     int    `mapstructure:"overlap_tokens" yaml:"overlap_tokens"`
	MinChunkSize      int    `mapstructure:"min_chunk_size" yaml:"min_chunk_size"`
	CharsPerToken     int    `mapstructure:"chars_per_token" yaml:"chars_per_token"`
	SmartChunking     bool   `mapstructure:"smart_chunking" yaml:"smart_chunking"`
	PreserveStructure bool   `mapstructure:"preserve_structure" yaml:"preserve_structure"`
	Tokenizer         string `mapstructure:"tokenizer" yaml:"tokenizer"` // heuristic or tiktoken
	Encoding          string `mapstructure:"encoding" yaml:"encoding"`
}

// SchedulerConfig holds the cost model and task defaults.
type SchedulerConfig struct {
	ExecutionBudget   time.Duration `mapstructure:"execution_budget" yaml:"execution_budget"`
	SafetyMargin      time.Duration `mapstructure:"safety_margin" yaml:"safety_margin"`
	PerChunkCost      time.Duration `mapstructure:"per_chunk_cost" yaml:"per_chunk_cost"`
	BatchOverhead     time.Duration `mapstructure:"batch_overhead" yaml:"batch_overhead"`
	DefaultPriority   string        `mapstructure:"default_priority" yaml:"default_priority"`
	DefaultBatchSize  int           `mapstructure:"default_batch_size" yaml:"default_batch_size"`
	DefaultMaxRetries int           `mapstructure:"default_max_retries" yaml:"default_max_retries"`
}

// ProcessorConfig holds the background processor and embedding settings.
type ProcessorConfig struct {
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	TaskTimeout        time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
	SoftCutoffRatio    float64       `mapstructure:"soft_cutoff_ratio" yaml:"soft_cutoff_ratio"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	BatchDelay         time.Duration `mapstructure:"batch_delay" yaml:"batch_delay"`
	NormalizeVectors   bool          `mapstructure:"normalize_vectors" yaml:"normalize_vectors"`
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // memory, badger or redis
	RedisURL    string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// StorageConfig selects the vector repository backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // badger or postgres
	Path    string `mapstructure:"path" yaml:"path"`       // Badger directory, empty for in-memory
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
	Table   string `mapstructure:"table" yaml:"table"`
}

// SourceConfig selects the object store documents are read from.
type SourceConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"` // file, minio or s3
	Dir          string `mapstructure:"dir" yaml:"dir"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint"`
	Region       string `mapstructure:"region" yaml:"region"`
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	AccessKey    string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey    string `mapstructure:"secret_key" yaml:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
	MaxSize      int64  `mapstructure:"max_size" yaml:"max_size"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	NATSURL  string `mapstructure:"nats_url" yaml:"nats_url"`
	Subject  string `mapstructure:"subject" yaml:"subject"`
	Progress bool   `mapstructure:"progress" yaml:"progress"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	MinSimilarity float64 `mapstructure:"min_similarity" yaml:"min_similarity"`
	MaxHits       int     `mapstructure:"max_hits" yaml:"max_hits"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.host", "http://localhost:11434/v1")
	v.SetDefault("ai.model", "embeddinggemma")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.dimensions", 0)
	v.SetDefault("ai.max_input_chars", 32000)
	v.SetDefault("ai.batch_size", 64)

	v.SetDefault("chunking.max_tokens", 1000)
	v.SetDefault("chunking.overlap_tokens", 100)
	v.SetDefault("chunking.min_chunk_size", 10)
	v.SetDefault("chunking.chars_per_token", 4)
	v.SetDefault("chunking.smart_chunking", true)
	v.SetDefault("chunking.preserve_structure", true)
	v.SetDefault("chunking.tokenizer", "heuristic")
	v.SetDefault("chunking.encoding", "cl100k_base")

	v.SetDefault("scheduler.execution_budget", "26s")
	v.SetDefault("scheduler.safety_margin", "3s")
	v.SetDefault("scheduler.per_chunk_cost", "250ms")
	v.SetDefault("scheduler.batch_overhead", "500ms")
	v.SetDefault("scheduler.default_priority", "normal")
	v.SetDefault("scheduler.default_batch_size", 10)
	v.SetDefault("scheduler.default_max_retries", 3)

	v.SetDefault("processor.max_concurrent_tasks", 3)
	v.SetDefault("processor.poll_interval", "1s")
	v.SetDefault("processor.task_timeout", "23s")
	v.SetDefault("processor.soft_cutoff_ratio", 0.85)
	v.SetDefault("processor.retry_base_delay", "200ms")
	v.SetDefault("processor.batch_delay", "0s")
	v.SetDefault("processor.normalize_vectors", false)

	v.SetDefault("queue.backend", "badger")
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.redis_prefix", "vectorit")

	v.SetDefault("storage.backend", "badger")
	v.SetDefault("storage.path", "./vectorit-data")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.table", "vectorit_chunks")

	v.SetDefault("source.backend", "file")
	v.SetDefault("source.dir", ".")
	v.SetDefault("source.endpoint", "")
	v.SetDefault("source.region", "us-east-1")
	v.SetDefault("source.bucket", "")
	v.SetDefault("source.access_key", "")
	v.SetDefault("source.secret_key", "")
	v.SetDefault("source.use_ssl", true)
	v.SetDefault("source.use_path_style", false)
	v.SetDefault("source.max_size", 64<<20)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.nats_url", "nats://localhost:4222")
	v.SetDefault("events.subject", "vectorit.tasks")
	v.SetDefault("events.progress", false)

	v.SetDefault("search.min_similarity", 0.5)
	v.SetDefault("search.max_hits", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", true)
}

// New returns a viper instance with defaults and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. An explicit path must exist; without one,
// vectorit.{yaml,toml,json} is looked up in the working directory and
// $HOME/.config/vectorit, and defaults apply when none is found.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("vectorit")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/vectorit")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := FromViper(New())
	if err != nil {
		panic(fmt.Errorf("invalid default configuration: %w", err))
	}
	return cfg
}

// LoadDotEnv loads environment variables from path. With an empty path a
// .env file in the working directory is loaded if present.
func LoadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the backend selections and value ranges. Component
// settings are validated again by the components themselves.
func (c *Config) Validate() error {
	if err := oneOf("ai.provider", c.AI.Provider, "openai"); err != nil {
		return err
	}
	if err := oneOf("chunking.tokenizer", c.Chunking.Tokenizer, "heuristic", "tiktoken"); err != nil {
		return err
	}
	if err := oneOf("queue.backend", c.Queue.Backend, "memory", "badger", "redis"); err != nil {
		return err
	}
	if err := oneOf("storage.backend", c.Storage.Backend, "badger", "postgres"); err != nil {
		return err
	}
	if err := oneOf("source.backend", c.Source.Backend, "file", "minio", "s3"); err != nil {
		return err
	}
	if err := oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if c.Storage.Backend == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("%w: storage.dsn is required for postgres", ErrInvalidConfig)
	}
	if (c.Source.Backend == "minio" || c.Source.Backend == "s3") && c.Source.Bucket == "" {
		return fmt.Errorf("%w: source.bucket is required for %s", ErrInvalidConfig, c.Source.Backend)
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("%w: search.min_similarity must be between -1 and 1", ErrInvalidConfig)
	}
	if c.Search.MaxHits < 1 {
		return fmt.Errorf("%w: search.max_hits must be at least 1", ErrInvalidConfig)
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", ErrInvalidConfig, key, strings.Join(allowed, ", "), value)
}
