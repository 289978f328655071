package core

import (
	"encoding/binary"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for persisted vector records.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// NewTaskID returns a fresh random task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// ChunkType classifies how a chunk was produced.
type ChunkType string

const (
	// ChunkTypeFull is a chunk holding an entire document.
	ChunkTypeFull ChunkType = "full"
	// ChunkTypeText is a chunk produced by separator-based splitting.
	ChunkTypeText ChunkType = "text"
	// ChunkTypeSection is a chunk produced from a markup section.
	ChunkTypeSection ChunkType = "section"
	// ChunkTypeCode is a chunk produced from source code declarations.
	ChunkTypeCode ChunkType = "code"
	// ChunkTypeTable is a chunk produced from tabular or record data.
	ChunkTypeTable ChunkType = "table"
)

// ChunkMetadata describes the structural context of a chunk.
type ChunkMetadata struct {
	Type         ChunkType
	Heading      string            // Enclosing heading for markup sections
	Level        int               // Heading level (1-6), 0 when not applicable
	IsNewSection bool              // True for the first chunk of a section
	Declaration  string            // Enclosing top-level declaration for source code
	Extra        map[string]string // Typed extension point for adapters
}

// TextChunk is an immutable, bounded fragment of a document.
// Positions are byte offsets into the original text; EndPosition is exclusive.
type TextChunk struct {
	Index         int
	Content       string
	TokenCount    int // Heuristic estimate, not an exact tokenizer count
	StartPosition int
	EndPosition   int
	Metadata      ChunkMetadata
}

// TaskStatus is the lifecycle state of a processing task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

// AllStatuses lists every task status in lifecycle order.
var AllStatuses = []TaskStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled}

// IsTerminal reports whether no further transitions are expected from s.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority orders tasks in the queue. Higher values are dequeued first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// MaxPriority is the highest defined priority.
const MaxPriority = PriorityUrgent

// TaskOptions controls how a task's chunks are embedded.
type TaskOptions struct {
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// TaskMetadata carries ownership and parent/child bookkeeping for a task.
type TaskMetadata struct {
	UserID       string
	Source       string // Object storage key of the originating document
	IsParentTask bool
	SubTaskIDs   []string
	ParentTaskID string
	PartNumber   int // 1-based position among siblings
	TotalParts   int

	// ContinuationOf names the task whose unprocessed chunks this task
	// carries. ContinuedBy is the reverse link on the original task.
	ContinuationOf string
	ContinuedBy    string
}

// ProcessingTask is the unit of schedulable work: the chunks of one document
// (or document portion) plus the options used to embed them.
type ProcessingTask struct {
	ID          string
	FileName    string
	FileType    string
	FileSize    int64
	Chunks      []TextChunk
	Status      TaskStatus
	Priority    Priority
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Progress    int // 0..100
	Error       string
	Options     TaskOptions
	Metadata    TaskMetadata
}

// IsParent reports whether the task is a non-runnable parent record.
func (t *ProcessingTask) IsParent() bool {
	return t.Metadata.IsParentTask
}

// Clone returns a copy of the task that shares no mutable state with t.
// Chunks are immutable once produced, so their contents are not deep-copied.
func (t *ProcessingTask) Clone() *ProcessingTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Chunks = slices.Clone(t.Chunks)
	c.Metadata.SubTaskIDs = slices.Clone(t.Metadata.SubTaskIDs)
	if t.StartedAt != nil {
		started := *t.StartedAt
		c.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		c.CompletedAt = &completed
	}
	for i := range c.Chunks {
		if c.Chunks[i].Metadata.Extra != nil {
			c.Chunks[i].Metadata.Extra = maps.Clone(c.Chunks[i].Metadata.Extra)
		}
	}
	return &c
}

// StatusUpdate is a status/progress mutation applied to a queued task.
type StatusUpdate struct {
	Status   TaskStatus
	Progress int
	Error    string
}

// ChunkEmbedding is the embedding computed for one chunk.
type ChunkEmbedding struct {
	ChunkIndex int
	Embedding  []float32
	TokenCount int
}

// ChunkError records a chunk whose embedding could not be computed.
type ChunkError struct {
	ChunkIndex int
	Error      string
	RetryCount int
}

// ProcessingStats summarizes a single task execution.
type ProcessingStats struct {
	TotalChunks     int
	ProcessedChunks int
	FailedChunks    int
	TotalTokens     int
	ProcessingTime  time.Duration
	AvgTimePerChunk time.Duration
}

// ChunkedProcessingResult is the outcome of embedding a sequence of chunks.
// Consumers must order embeddings by ChunkIndex, never by slice position.
type ChunkedProcessingResult struct {
	Status     TaskStatus
	Embeddings []ChunkEmbedding
	Stats      ProcessingStats
	Errors     []ChunkError
	IsComplete bool
}

// Unprocessed returns the chunks that appear in neither Embeddings nor Errors,
// which happens when processing stopped early at the soft time cutoff.
func (r *ChunkedProcessingResult) Unprocessed(chunks []TextChunk) []TextChunk {
	seen := make(map[int]bool, len(r.Embeddings)+len(r.Errors))
	for _, e := range r.Embeddings {
		seen[e.ChunkIndex] = true
	}
	for _, e := range r.Errors {
		seen[e.ChunkIndex] = true
	}
	var rest []TextChunk
	for _, c := range chunks {
		if !seen[c.Index] {
			rest = append(rest, c)
		}
	}
	return rest
}

// ProcessingResult is produced once per task execution and never mutated afterwards.
type ProcessingResult struct {
	TaskID string
	ChunkedProcessingResult
}

// EmbeddedChunk is a persisted chunk with its embedding vector.
type EmbeddedChunk struct {
	Id         ID
	FileKey    string
	ChunkIndex int
	Content    string
	TokenCount int
	Start      int
	End        int
	Metadata   ChunkMetadata
	Vector     []float32
	InsertedAt time.Time
}

// EmbeddedChunkID derives the deterministic record ID for a chunk of a file.
func EmbeddedChunkID(fileKey string, chunkIndex int) ID {
	return IDFromContent(fileKey + "#" + strconv.Itoa(chunkIndex))
}

// SearchResult represents a search result with the full chunk and relevance score.
type SearchResult struct {
	Chunk *EmbeddedChunk
	Score float32
}
