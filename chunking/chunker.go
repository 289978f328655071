package chunking

import (
	"log/slog"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/vectorit/core"
)

// minWindow keeps the generic splitter advancing on tiny token budgets.
const minWindow = 8

// Chunker splits extracted document text into ordered, bounded chunks.
// A Chunker is immutable after construction and safe for concurrent use.
type Chunker struct {
	cfg       Config
	estimator TokenEstimator
	logger    *slog.Logger
}

// New creates a Chunker with DefaultConfig and applies opts.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		cfg:       DefaultConfig(),
		estimator: HeuristicEstimator{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Config returns the chunker's base configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// EstimateTokens estimates the token cost of text with the configured strategy.
func (c *Chunker) EstimateTokens(text string) int {
	return c.estimator.EstimateTokens(text)
}

// Chunk splits text into chunks. fileType may be a type name, MIME type or
// extension; fileSize selects the size tier and defaults to len(text).
//
// Text that fits MaxTokens is returned as a single chunk spanning the whole
// input. Whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text string, fileType string, fileSize int64) []core.TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	total := c.estimator.EstimateTokens(text)
	if total <= c.cfg.MaxTokens {
		return []core.TextChunk{{
			Index:         0,
			Content:       text,
			TokenCount:    total,
			StartPosition: 0,
			EndPosition:   len(text),
			Metadata:      core.ChunkMetadata{Type: core.ChunkTypeFull},
		}}
	}

	if fileSize <= 0 {
		fileSize = int64(len(text))
	}
	ft := ParseFileType(fileType)
	p := c.resolve(ft, fileSize)

	var chunks []core.TextChunk
	if c.cfg.PreserveStructure {
		switch ft {
		case FileTypeMarkdown:
			chunks = c.splitMarkdown(text, p)
		case FileTypeCode:
			chunks = c.splitCode(text, p)
		}
	}
	if chunks == nil {
		meta := core.ChunkMetadata{Type: core.ChunkTypeText}
		if ft == FileTypeTabular {
			meta.Type = core.ChunkTypeTable
		}
		chunks = c.splitGeneric(nil, text, 0, len(text), p, meta)
	}

	for i := range chunks {
		chunks[i].Index = i
	}

	c.logger.Debug("chunked text",
		"type", ft,
		"tokens", total,
		"max_tokens", p.maxTokens,
		"chunks", len(chunks))
	return chunks
}

// splitGeneric appends chunks covering doc[from:to] using separator-based cuts.
//
// Each window is maxTokens*CharsPerToken bytes. The cut is the latest
// occurrence of the highest-priority separator that lands past the window's
// midpoint, or a hard cut at the window boundary. The next window starts
// overlap bytes before the cut.
func (c *Chunker) splitGeneric(chunks []core.TextChunk, doc string, from, to int, p params, meta core.ChunkMetadata) []core.TextChunk {
	window := max(minWindow, p.maxTokens*c.cfg.CharsPerToken)
	overlap := min(p.overlapTokens*c.cfg.CharsPerToken, window/2-1)
	overlap = max(overlap, 0)

	pos := from
	for pos < to {
		if to-pos <= window {
			chunks = c.appendPiece(chunks, doc, pos, to, p, meta, false)
			break
		}

		cut := findCut(doc, pos, window, p.separators)
		if cut == 0 {
			break
		}
		end := pos + cut
		before := len(chunks)
		chunks = c.appendPiece(chunks, doc, pos, end, p, meta, false)
		if len(chunks) > before {
			meta.IsNewSection = false
		}

		next := end - overlap
		for next > pos && next < to && !utf8.RuneStart(doc[next]) {
			next--
		}
		if next <= pos {
			next = end
		}
		pos = next
	}
	return chunks
}

// findCut returns the length of the piece to cut from doc[pos:pos+window].
// doc must extend past the window.
func findCut(doc string, pos, window int, separators []string) int {
	w := doc[pos : pos+window]
	mid := len(w) / 2
	for _, sep := range separators {
		if sep == "" {
			continue
		}
		if i := strings.LastIndex(w, sep); i >= mid {
			return i + len(sep)
		}
	}
	cut := window
	for cut > 0 && !utf8.RuneStart(doc[pos+cut]) {
		cut--
	}
	return cut
}

// appendPiece appends doc[start:end] as a chunk. Whitespace-only pieces are
// dropped. Pieces below minChunkSize are dropped by the generic splitter, and
// merged into an adjacent previous chunk by the structure-aware splitters.
func (c *Chunker) appendPiece(chunks []core.TextChunk, doc string, start, end int, p params, meta core.ChunkMetadata, merge bool) []core.TextChunk {
	piece := doc[start:end]
	trimmed := strings.TrimSpace(piece)
	if trimmed == "" {
		return chunks
	}

	if len(trimmed) < p.minChunkSize {
		if !merge {
			return chunks
		}
		if n := len(chunks); n > 0 && chunks[n-1].EndPosition == start {
			last := &chunks[n-1]
			merged := doc[last.StartPosition:end]
			if tokens := c.estimator.EstimateTokens(merged); tokens <= p.maxTokens {
				last.Content = merged
				last.EndPosition = end
				last.TokenCount = tokens
				return chunks
			}
		}
	}

	meta.Extra = maps.Clone(meta.Extra)
	return append(chunks, core.TextChunk{
		Content:       piece,
		TokenCount:    c.estimator.EstimateTokens(piece),
		StartPosition: start,
		EndPosition:   end,
		Metadata:      meta,
	})
}
