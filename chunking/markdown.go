package chunking

import (
	"regexp"
	"strings"

	"github.com/poiesic/vectorit/core"
)

var headingRe = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)(?:[ \t]+#+)?[ \t]*$`)

// section is a heading-delimited span of a markdown document.
type section struct {
	start, end int
	heading    string
	level      int
}

// markdownSections splits doc at ATX heading lines. Headings inside fenced
// code blocks are ignored. Content before the first heading forms a section
// with level 0.
func markdownSections(doc string) []section {
	var (
		sections []section
		cur      section
		fence    string
	)
	for off := 0; off < len(doc); {
		lineEnd := len(doc)
		if nl := strings.IndexByte(doc[off:], '\n'); nl >= 0 {
			lineEnd = off + nl + 1
		}
		line := strings.TrimRight(doc[off:lineEnd], "\r\n")
		trimmed := strings.TrimLeft(line, " ")

		switch {
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			marker := trimmed[:3]
			if fence == "" {
				fence = marker
			} else if marker == fence {
				fence = ""
			}
		case fence == "":
			if m := headingRe.FindStringSubmatch(line); m != nil && m[2] != "" {
				if off > cur.start {
					cur.end = off
					sections = append(sections, cur)
				}
				cur = section{start: off, heading: m[2], level: len(m[1])}
			}
		}
		off = lineEnd
	}
	cur.end = len(doc)
	return append(sections, cur)
}

// splitMarkdown emits one chunk per heading section, sub-splitting sections
// over budget. Every chunk carries its section's heading and level.
func (c *Chunker) splitMarkdown(doc string, p params) []core.TextChunk {
	var chunks []core.TextChunk
	for _, s := range markdownSections(doc) {
		meta := core.ChunkMetadata{
			Type:         core.ChunkTypeSection,
			Heading:      s.heading,
			Level:        s.level,
			IsNewSection: true,
		}
		if c.estimator.EstimateTokens(doc[s.start:s.end]) <= p.maxTokens {
			chunks = c.appendPiece(chunks, doc, s.start, s.end, p, meta, true)
			continue
		}
		chunks = c.splitGeneric(chunks, doc, s.start, s.end, p, meta)
	}
	return chunks
}
