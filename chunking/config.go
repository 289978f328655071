package chunking

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Config holds the base chunking settings. When SmartChunking is enabled the
// per-type presets and size tiers replace MaxTokens, OverlapTokens,
// MinChunkSize and Separators for documents that need splitting.
type Config struct {
	// MaxTokens is the largest estimated token count of a chunk.
	// Default: 1000
	MaxTokens int

	// OverlapTokens is how much trailing content is repeated at the start of the next chunk.
	// Default: 100
	OverlapTokens int

	// MinChunkSize is the smallest chunk kept, in characters after trimming.
	// Default: 10
	MinChunkSize int

	// Separators are cut points in priority order.
	Separators []string

	// PreserveStructure enables the markdown and code splitters.
	PreserveStructure bool

	// SmartChunking enables per-type presets and size tiers.
	SmartChunking bool

	// CharsPerToken converts token budgets to character windows.
	// Default: 4
	CharsPerToken int
}

// DefaultSeparators split on paragraph, line, sentence, clause and word boundaries.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " "}

// DefaultConfig returns the default chunker settings.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         1000,
		OverlapTokens:     100,
		MinChunkSize:      10,
		Separators:        DefaultSeparators,
		PreserveStructure: true,
		SmartChunking:     true,
		CharsPerToken:     4,
	}
}

// Validate checks that the settings can produce chunks.
func (c Config) Validate() error {
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: MaxTokens must be positive", ErrInvalidConfig)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("%w: OverlapTokens must be in [0, MaxTokens)", ErrInvalidConfig)
	}
	if c.MinChunkSize < 0 {
		return fmt.Errorf("%w: MinChunkSize cannot be negative", ErrInvalidConfig)
	}
	if c.CharsPerToken < 1 {
		return fmt.Errorf("%w: CharsPerToken must be positive", ErrInvalidConfig)
	}
	if len(c.Separators) == 0 {
		return fmt.Errorf("%w: at least one separator is required", ErrInvalidConfig)
	}
	return nil
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Chunker) error {
		c.cfg = cfg
		return nil
	}
}

// WithMaxTokens sets the maximum tokens per chunk.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) error {
		c.cfg.MaxTokens = n
		return nil
	}
}

// WithOverlapTokens sets the overlap between consecutive chunks.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) error {
		c.cfg.OverlapTokens = n
		return nil
	}
}

// WithMinChunkSize sets the minimum chunk size in characters.
func WithMinChunkSize(n int) Option {
	return func(c *Chunker) error {
		c.cfg.MinChunkSize = n
		return nil
	}
}

// WithSeparators sets the generic splitter's separators in priority order.
func WithSeparators(seps ...string) Option {
	return func(c *Chunker) error {
		c.cfg.Separators = seps
		return nil
	}
}

// WithPreserveStructure toggles the structure-aware splitters.
func WithPreserveStructure(on bool) Option {
	return func(c *Chunker) error {
		c.cfg.PreserveStructure = on
		return nil
	}
}

// WithSmartChunking toggles per-type presets and size tiers.
func WithSmartChunking(on bool) Option {
	return func(c *Chunker) error {
		c.cfg.SmartChunking = on
		return nil
	}
}

// WithCharsPerToken sets the character/token ratio used to size windows.
func WithCharsPerToken(n int) Option {
	return func(c *Chunker) error {
		c.cfg.CharsPerToken = n
		return nil
	}
}

// WithEstimator replaces the token estimation strategy.
// Default is HeuristicEstimator with DefaultMultipliers.
func WithEstimator(e TokenEstimator) Option {
	return func(c *Chunker) error {
		if e == nil {
			return fmt.Errorf("%w: estimator is nil", ErrInvalidConfig)
		}
		c.estimator = e
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// FileType is the structural class of a document.
type FileType string

const (
	FileTypeText     FileType = "text"
	FileTypeMarkdown FileType = "markdown"
	FileTypeCode     FileType = "code"
	FileTypeTabular  FileType = "tabular"
)

var extensionTypes = map[string]FileType{
	".md": FileTypeMarkdown, ".markdown": FileTypeMarkdown, ".mdx": FileTypeMarkdown, ".rst": FileTypeMarkdown,

	".go": FileTypeCode, ".py": FileTypeCode, ".js": FileTypeCode, ".jsx": FileTypeCode,
	".ts": FileTypeCode, ".tsx": FileTypeCode, ".java": FileTypeCode, ".kt": FileTypeCode,
	".c": FileTypeCode, ".h": FileTypeCode, ".cc": FileTypeCode, ".cpp": FileTypeCode,
	".hpp": FileTypeCode, ".cs": FileTypeCode, ".rs": FileTypeCode, ".rb": FileTypeCode,
	".php": FileTypeCode, ".swift": FileTypeCode, ".scala": FileTypeCode, ".sh": FileTypeCode,

	".csv": FileTypeTabular, ".tsv": FileTypeTabular, ".json": FileTypeTabular,
	".jsonl": FileTypeTabular, ".ndjson": FileTypeTabular, ".xml": FileTypeTabular,
}

var mimeTypes = map[string]FileType{
	"text/markdown":             FileTypeMarkdown,
	"text/x-markdown":           FileTypeMarkdown,
	"text/csv":                  FileTypeTabular,
	"text/tab-separated-values": FileTypeTabular,
	"application/json":          FileTypeTabular,
	"application/x-ndjson":      FileTypeTabular,
	"application/xml":           FileTypeTabular,
	"text/x-go":                 FileTypeCode,
	"text/x-python":             FileTypeCode,
	"text/javascript":           FileTypeCode,
	"application/javascript":    FileTypeCode,
	"text/x-java":               FileTypeCode,
	"text/x-c":                  FileTypeCode,
}

// ParseFileType maps a type name, MIME type, extension or file name to a FileType.
// Unrecognized values map to FileTypeText.
func ParseFileType(s string) FileType {
	v := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	switch FileType(v) {
	case FileTypeText, FileTypeMarkdown, FileTypeCode, FileTypeTabular:
		return FileType(v)
	}
	if ft, ok := mimeTypes[v]; ok {
		return ft
	}
	if ext := filepath.Ext(v); ext != "" {
		v = ext
	} else {
		v = "." + v
	}
	if ft, ok := extensionTypes[v]; ok {
		return ft
	}
	return FileTypeText
}

// NormalizeFileType resolves a document's type from its declared type,
// falling back to the file name's extension.
func NormalizeFileType(name, declared string) FileType {
	if declared != "" {
		if ft := ParseFileType(declared); ft != FileTypeText || isTextDeclaration(declared) {
			return ft
		}
	}
	if ext := filepath.Ext(name); ext != "" {
		return ParseFileType(ext)
	}
	return FileTypeText
}

func isTextDeclaration(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == string(FileTypeText) || v == ".txt" || v == "txt" || strings.HasPrefix(v, "text/plain")
}

// preset is the per-type chunking profile used by smart chunking.
type preset struct {
	maxTokens     int
	overlapTokens int
	minChunkSize  int
	separators    []string
}

var presets = map[FileType]preset{
	FileTypeText: {
		maxTokens:     1000,
		overlapTokens: 100,
		minChunkSize:  50,
		separators:    DefaultSeparators,
	},
	FileTypeMarkdown: {
		maxTokens:     1200,
		overlapTokens: 100,
		minChunkSize:  50,
		separators:    []string{"\n## ", "\n### ", "\n\n", "\n", ". ", " "},
	},
	FileTypeCode: {
		maxTokens:     800,
		overlapTokens: 50,
		minChunkSize:  20,
		separators:    []string{"\n\n", "\n}", "\n", "; ", " "},
	},
	FileTypeTabular: {
		maxTokens:     1500,
		overlapTokens: 0,
		minChunkSize:  20,
		separators:    []string{"\n", ",", " "},
	},
}

// sizeTier scales chunk budgets down for larger files.
type sizeTier struct {
	below  int64
	factor float64
}

var sizeTiers = []sizeTier{
	{below: 100 << 10, factor: 1.0}, // small
	{below: 1 << 20, factor: 0.9},   // medium
	{below: 10 << 20, factor: 0.75}, // large
}

const extraLargeFactor = 0.6

func tierFactor(size int64) float64 {
	for _, t := range sizeTiers {
		if size < t.below {
			return t.factor
		}
	}
	return extraLargeFactor
}

// params are the resolved settings for one chunking pass.
type params struct {
	maxTokens     int
	overlapTokens int
	minChunkSize  int
	separators    []string
}

func (c *Chunker) resolve(ft FileType, size int64) params {
	if !c.cfg.SmartChunking {
		return params{
			maxTokens:     c.cfg.MaxTokens,
			overlapTokens: c.cfg.OverlapTokens,
			minChunkSize:  c.cfg.MinChunkSize,
			separators:    c.cfg.Separators,
		}
	}
	p, ok := presets[ft]
	if !ok {
		p = presets[FileTypeText]
	}
	f := tierFactor(size)
	return params{
		maxTokens:     max(1, int(float64(p.maxTokens)*f)),
		overlapTokens: int(float64(p.overlapTokens) * f),
		minChunkSize:  p.minChunkSize,
		separators:    p.separators,
	}
}
