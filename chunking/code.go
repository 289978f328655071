package chunking

import (
	"regexp"
	"strings"

	"github.com/poiesic/vectorit/core"
)

// declPatterns match unindented top-level declarations. Each has exactly one
// capture group holding the declared name.
var declPatterns = []string{
	// Go
	`func\s+(?:\([^)]*\)\s*)?([A-Za-z_]\w*)`,
	`type\s+([A-Za-z_]\w*)`,
	// Python
	`(?:async\s+)?def\s+([A-Za-z_]\w*)`,
	// JavaScript / TypeScript
	`(?:export\s+)?(?:default\s+)?(?:async\s+)?function\*?\s*([A-Za-z_$][\w$]*)`,
	`(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`,
	`(?:export\s+)?(?:interface|enum)\s+([A-Za-z_$][\w$]*)`,
	`(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function|\()`,
	// Rust
	`(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?(?:unsafe\s+)?(?:fn|struct|enum|trait|mod)\s+([A-Za-z_]\w*)`,
	`impl(?:<[^>]*>)?\s+([A-Za-z_]\w*)`,
	// Java / C# / Kotlin
	`(?:(?:public|private|protected|internal|static|final|abstract|sealed|data)\s+)+(?:class|interface|enum|record|struct|object)\s+([A-Za-z_]\w*)`,
}

var declRe = regexp.MustCompile(`^(?:` + strings.Join(declPatterns, `|`) + `)`)

// block is a top-level declaration and the lines up to the next one.
type block struct {
	start, end int
	name       string
}

func declName(line string) (string, bool) {
	m := declRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", true
}

func isLeadingLine(trimmed string) bool {
	for _, p := range []string{"//", "#", "/*", "*", "@", "///"} {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}

// codeBlocks splits doc at top-level declarations. A declaration starts a new
// block only at nesting depth 0 on an unindented line; comment and decorator
// lines directly above it belong to it.
func codeBlocks(doc string) []block {
	var (
		blocks []block
		cur    block
		depth  int
	)
	leadStart := -1
	for off := 0; off < len(doc); {
		lineEnd := len(doc)
		if nl := strings.IndexByte(doc[off:], '\n'); nl >= 0 {
			lineEnd = off + nl + 1
		}
		line := strings.TrimRight(doc[off:lineEnd], "\r\n")
		trimmed := strings.TrimSpace(line)
		indented := len(line) > 0 && (line[0] == ' ' || line[0] == '\t')

		if depth == 0 && !indented {
			switch {
			case trimmed == "":
				leadStart = -1
			case isLeadingLine(trimmed):
				if leadStart < 0 {
					leadStart = off
				}
			default:
				if name, ok := declName(line); ok {
					start := off
					if leadStart >= 0 {
						start = leadStart
					}
					if start > cur.start {
						cur.end = start
						blocks = append(blocks, cur)
					}
					cur = block{start: start, name: name}
				}
				leadStart = -1
			}
		}

		depth = max(0, depth+braceDelta(line))
		off = lineEnd
	}
	cur.end = len(doc)
	return append(blocks, cur)
}

// braceDelta returns the change in brace depth over one line, ignoring
// braces inside string literals and line comments.
func braceDelta(line string) int {
	delta := 0
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			quote = ch
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return delta
			}
		case '{':
			delta++
		case '}':
			delta--
		}
	}
	return delta
}

// splitCode groups consecutive declaration blocks into chunks that fit the
// budget. A block over budget is split on its own with the code separators.
// Each chunk records the first declaration it contains.
func (c *Chunker) splitCode(doc string, p params) []core.TextChunk {
	var chunks []core.TextChunk
	gStart, gEnd, gTokens, gName := -1, -1, 0, ""
	flush := func() {
		if gStart >= 0 {
			meta := core.ChunkMetadata{Type: core.ChunkTypeCode, Declaration: gName}
			chunks = c.appendPiece(chunks, doc, gStart, gEnd, p, meta, true)
		}
		gStart, gEnd, gTokens, gName = -1, -1, 0, ""
	}

	for _, b := range codeBlocks(doc) {
		tokens := c.estimator.EstimateTokens(doc[b.start:b.end])
		if tokens > p.maxTokens {
			flush()
			meta := core.ChunkMetadata{Type: core.ChunkTypeCode, Declaration: b.name}
			chunks = c.splitGeneric(chunks, doc, b.start, b.end, p, meta)
			continue
		}
		if gStart >= 0 && gTokens+tokens > p.maxTokens {
			flush()
		}
		if gStart < 0 {
			gStart = b.start
		}
		if gName == "" {
			gName = b.name
		}
		gEnd = b.end
		gTokens += tokens
	}
	flush()
	return chunks
}
