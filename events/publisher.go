package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/poiesic/vectorit/core"
	"github.com/poiesic/vectorit/embedding"
	"github.com/poiesic/vectorit/processor"
)

// DefaultSubjectPrefix is prepended to the event type to form the subject.
const DefaultSubjectPrefix = "vectorit.tasks"

const connectTimeout = 5 * time.Second

// Type names a lifecycle event.
type Type string

const (
	TypeStarted   Type = "started"
	TypeProgress  Type = "progress"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeCancelled Type = "cancelled"
)

// Event is the JSON payload published for each notification.
type Event struct {
	Type         Type      `json:"type"`
	TaskID       string    `json:"task_id"`
	ParentTaskID string    `json:"parent_task_id,omitempty"`
	PartNumber   int       `json:"part_number,omitempty"`
	FileName     string    `json:"file_name"`
	Source       string    `json:"source,omitempty"`
	Chunks       int       `json:"chunks"`
	Processed    int       `json:"processed,omitempty"`
	Embedded     int       `json:"embedded,omitempty"`
	FailedChunks int       `json:"failed_chunks,omitempty"`
	Complete     bool      `json:"complete,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// PublishFunc sends data on subject.
type PublishFunc func(subject string, data []byte) error

// Config holds the NATS connection settings.
type Config struct {
	URL             string
	Name            string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	PublishProgress bool
}

// DefaultConfig returns settings for a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "vectorit",
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: NATS URL cannot be empty", ErrInvalidConfig)
	}
	if c.SubjectPrefix == "" {
		return fmt.Errorf("%w: subject prefix cannot be empty", ErrInvalidConfig)
	}
	if c.MaxReconnects < -1 {
		return fmt.Errorf("%w: max reconnects must be -1 (unlimited) or more", ErrInvalidConfig)
	}
	if c.ReconnectWait < 0 {
		return fmt.Errorf("%w: reconnect wait cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Publisher turns processor notifications into published events.
type Publisher struct {
	publish  PublishFunc
	conn     *nats.Conn
	prefix   string
	progress bool
	logger   *slog.Logger
	now      func() time.Time
}

var _ processor.Observer = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(*Publisher) error

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(p *Publisher) error {
		if prefix == "" {
			return fmt.Errorf("%w: subject prefix cannot be empty", ErrInvalidConfig)
		}
		p.prefix = prefix
		return nil
	}
}

// WithProgress enables per-batch progress events.
func WithProgress(on bool) Option {
	return func(p *Publisher) error {
		p.progress = on
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// NewPublisher creates a publisher that sends events through publish.
func NewPublisher(publish PublishFunc, opts ...Option) (*Publisher, error) {
	if publish == nil {
		return nil, ErrPublishFuncRequired
	}
	p := &Publisher{
		publish: publish,
		prefix:  DefaultSubjectPrefix,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "events")
	return p, nil
}

// Connect dials NATS and returns a publisher that owns the connection.
func Connect(cfg Config, opts ...Option) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "events")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(connectTimeout),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "err", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	base := []Option{WithSubjectPrefix(cfg.SubjectPrefix), WithProgress(cfg.PublishProgress)}
	p, err := NewPublisher(conn.Publish, append(base, opts...)...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// Close flushes pending events and closes an owned connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn = nil
	return err
}

// Subject returns the subject events of type t are published on.
func (p *Publisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

func (p *Publisher) OnTaskStart(_ context.Context, task *core.ProcessingTask) {
	p.send(p.event(TypeStarted, task))
}

func (p *Publisher) OnTaskProgress(_ context.Context, task *core.ProcessingTask, processed, _ int) {
	if !p.progress {
		return
	}
	ev := p.event(TypeProgress, task)
	ev.Processed = processed
	p.send(ev)
}

func (p *Publisher) OnTaskComplete(_ context.Context, task *core.ProcessingTask, result *core.ProcessingResult) {
	ev := p.event(TypeCompleted, task)
	ev.Processed = result.Stats.ProcessedChunks + result.Stats.FailedChunks
	ev.Embedded = result.Stats.ProcessedChunks
	ev.FailedChunks = result.Stats.FailedChunks
	ev.Complete = result.IsComplete
	p.send(ev)
}

func (p *Publisher) OnTaskError(_ context.Context, task *core.ProcessingTask, err error) {
	t := TypeFailed
	if errors.Is(err, embedding.ErrCancelled) {
		t = TypeCancelled
	}
	ev := p.event(t, task)
	if err != nil {
		ev.Error = err.Error()
	}
	p.send(ev)
}

func (p *Publisher) event(t Type, task *core.ProcessingTask) *Event {
	return &Event{
		Type:         t,
		TaskID:       task.ID,
		ParentTaskID: task.Metadata.ParentTaskID,
		PartNumber:   task.Metadata.PartNumber,
		FileName:     task.FileName,
		Source:       task.Metadata.Source,
		Chunks:       len(task.Chunks),
		Timestamp:    p.now().UTC(),
	}
}

func (p *Publisher) send(ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to encode event", "type", ev.Type, "task", ev.TaskID, "err", err)
		return
	}
	subject := p.Subject(ev.Type)
	if err := p.publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", "subject", subject, "task", ev.TaskID, "err", err)
	}
}
