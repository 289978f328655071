package search

import (
	"strings"
	"unicode"
)

// stopWords never count towards a verbatim match.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "or": true, "in": true,
	"that": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "at": true, "this": true, "by": true, "from": true, "if": true,
}

// isSeparator splits text into terms. Markdown and code punctuation such as
// '#', '*', '`', '|', brackets, dots and operators separate terms, while
// underscores stay inside identifiers.
func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// queryTerms returns the lowercased query terms minus stop words.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(query, isSeparator)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		term := strings.ToLower(strings.Trim(f, "_"))
		if term != "" && !stopWords[term] {
			terms = append(terms, term)
		}
	}
	return terms
}

// documentTerms returns every lowercased term of a chunk. Identifiers also
// contribute their parts, so ChunkSize and chunk_size both contain "chunk"
// and "size".
func documentTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, f := range strings.FieldsFunc(text, isSeparator) {
		f = strings.Trim(f, "_")
		if f == "" {
			continue
		}
		terms[strings.ToLower(f)] = true
		for _, part := range identifierParts(f) {
			terms[part] = true
		}
	}
	return terms
}

// identifierParts splits a snake_case or camelCase identifier into lowercased
// parts. A run of capitals is kept together (NewHTTPServer is new, http,
// server). Plain words yield nil.
func identifierParts(word string) []string {
	var parts []string
	for _, piece := range strings.Split(word, "_") {
		runes := []rune(piece)
		start := 0
		for i := 1; i < len(runes); i++ {
			if !unicode.IsUpper(runes[i]) {
				continue
			}
			prev := runes[i-1]
			endsAcronym := unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || endsAcronym {
				parts = append(parts, strings.ToLower(string(runes[start:i])))
				start = i
			}
		}
		if start < len(runes) {
			parts = append(parts, strings.ToLower(string(runes[start:])))
		}
	}
	if len(parts) < 2 {
		return nil
	}
	return parts
}

// containsQueryTerms reports whether every query term occurs in document.
// A query made only of stop words never matches.
func containsQueryTerms(document, query string) bool {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return false
	}
	docTerms := documentTerms(document)
	for _, term := range terms {
		if !docTerms[term] {
			return false
		}
	}
	return true
}
