package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/vectorit/chunking"
	"github.com/poiesic/vectorit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, 26*time.Second, cfg.Scheduler.ExecutionBudget)
	assert.Equal(t, 3*time.Second, cfg.Scheduler.SafetyMargin)
	assert.Equal(t, 3, cfg.Processor.MaxConcurrentTasks)
	assert.Equal(t, time.Second, cfg.Processor.PollInterval)
	assert.Equal(t, 23*time.Second, cfg.Processor.TaskTimeout)
	assert.InDelta(t, 0.85, cfg.Processor.SoftCutoffRatio, 1e-9)
	assert.Equal(t, "badger", cfg.Queue.Backend)
	assert.Equal(t, "file", cfg.Source.Backend)
	assert.Equal(t, int64(64<<20), cfg.Source.MaxSize)
	assert.Equal(t, "vectorit.tasks", cfg.Events.Subject)
	assert.Equal(t, 10, cfg.Search.MaxHits)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, "vectorit.yaml", `
ai:
  model: text-embedding-3-large
processor:
  max_concurrent_tasks: 5
  poll_interval: 250ms
scheduler:
  default_priority: high
queue:
  backend: redis
  redis_url: redis://cache:6379/1
storage:
  backend: postgres
  dsn: postgres://localhost/vectors
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.AI.Model)
	assert.Equal(t, 5, cfg.Processor.MaxConcurrentTasks)
	assert.Equal(t, 250*time.Millisecond, cfg.Processor.PollInterval)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Queue.RedisURL)
	assert.Equal(t, "postgres://localhost/vectors", cfg.Storage.DSN)
	// Unset keys keep their defaults
	assert.Equal(t, 23*time.Second, cfg.Processor.TaskTimeout)

	sched, err := cfg.Scheduler.ToScheduler()
	require.NoError(t, err)
	assert.Equal(t, core.PriorityHigh, sched.DefaultPriority)
	assert.Equal(t, 23*time.Second, sched.Budget())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VECTORIT_PROCESSOR_MAX_CONCURRENT_TASKS", "7")
	t.Setenv("VECTORIT_AI_API_KEY", "secret")
	t.Setenv("VECTORIT_PROCESSOR_TASK_TIMEOUT", "40s")

	path := writeConfig(t, "vectorit.yaml", "processor:\n  max_concurrent_tasks: 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Processor.MaxConcurrentTasks)
	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, 40*time.Second, cfg.Processor.TaskTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.AI.Provider = "gemini" }},
		{"mock provider", func(c *Config) { c.AI.Provider = "mock" }},
		{"unknown queue", func(c *Config) { c.Queue.Backend = "kafka" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"s3 without bucket", func(c *Config) { c.Source.Backend = "s3" }},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }},
		{"bad similarity", func(c *Config) { c.Search.MinSimilarity = 2 }},
		{"zero max hits", func(c *Config) { c.Search.MaxHits = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestYAML(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "poll_interval: 1s")
	assert.Contains(t, text, "execution_budget: 26s")
	assert.Contains(t, text, "backend: badger")
	assert.Contains(t, text, "subject: vectorit.tasks")
}

func TestLoadDotEnv(t *testing.T) {
	const key = "VECTORIT_TEST_DOTENV_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeConfig(t, "test.env", key+"=from-file\n")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestComponentConversions(t *testing.T) {
	cfg := Default()

	aiCfg := cfg.AI.ToAI()
	assert.Equal(t, "embeddinggemma", aiCfg.EmbeddingModel)
	assert.Equal(t, 64, aiCfg.BatchSize)

	opts, err := cfg.Chunking.Options()
	require.NoError(t, err)
	c, err := chunking.New(opts...)
	require.NoError(t, err)
	assert.Equal(t, 1000, c.Config().MaxTokens)

	emb := cfg.ToEmbedding()
	assert.Equal(t, 10, emb.BatchSize)
	assert.Equal(t, 3, emb.MaxRetries)
	assert.NoError(t, emb.Validate())
	assert.Len(t, cfg.ProcessorOptions(), 5)

	cfg.Scheduler.DefaultPriority = "whenever"
	_, err = cfg.Scheduler.ToScheduler()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	ev := cfg.Events.ToEvents()
	assert.Equal(t, "nats://localhost:4222", ev.URL)
	assert.Equal(t, "vectorit.tasks", ev.SubjectPrefix)

	cfg.Source.Bucket = "docs"
	assert.Equal(t, "docs", cfg.Source.ToS3().Bucket)
	assert.Equal(t, "docs", cfg.Source.ToMinio().Bucket)
}
