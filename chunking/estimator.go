package chunking

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// TokenEstimator counts the tokens a text will cost an embedding model.
// Implementations must be safe for concurrent use.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Script is the writing system that dominates a piece of text.
type Script string

const (
	ScriptLatin      Script = "latin"
	ScriptCyrillic   Script = "cyrillic"
	ScriptGreek      Script = "greek"
	ScriptArabic     Script = "arabic"
	ScriptHebrew     Script = "hebrew"
	ScriptDevanagari Script = "devanagari"
	ScriptThai       Script = "thai"
	ScriptCJK        Script = "cjk"
	ScriptOther      Script = "other"
)

// DefaultMultipliers are tokens-per-word guesses for each script.
// CJK is counted per character rather than per whitespace-separated word.
// The values are rough; replace them with measurements for a specific model.
var DefaultMultipliers = map[Script]float64{
	ScriptLatin:      1.3,
	ScriptCyrillic:   2.0,
	ScriptGreek:      2.0,
	ScriptArabic:     1.8,
	ScriptHebrew:     1.8,
	ScriptDevanagari: 2.5,
	ScriptThai:       2.0,
	ScriptCJK:        1.5,
	ScriptOther:      1.5,
}

const (
	punctuationPenalty = 0.5
	digitsPerToken     = 3
)

// HeuristicEstimator approximates token counts from word counts.
// It never calls a tokenizer, so it is cheap but only an estimate.
type HeuristicEstimator struct {
	// Multipliers overrides DefaultMultipliers when non-nil.
	Multipliers map[Script]float64
}

func (h HeuristicEstimator) multiplier(s Script) float64 {
	table := h.Multipliers
	if table == nil {
		table = DefaultMultipliers
	}
	if m, ok := table[s]; ok {
		return m
	}
	if m, ok := table[ScriptOther]; ok {
		return m
	}
	return 1
}

// EstimateTokens returns word count times the dominant script's multiplier plus
// penalties for punctuation and long numbers. Non-empty text costs at least 1.
func (h HeuristicEstimator) EstimateTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	var (
		words, cjk, punct, digitTokens int
		letters                        = map[Script]int{}
	)
	for _, field := range strings.Fields(text) {
		counted := false
		digits := 0
		for _, r := range field {
			switch {
			case isCJK(r):
				cjk++
			case unicode.IsLetter(r):
				letters[scriptOf(r)]++
				counted = true
			case unicode.IsDigit(r):
				digits++
				counted = true
			case unicode.IsPunct(r) || unicode.IsSymbol(r):
				punct++
			}
		}
		if counted {
			words++
		}
		// Long numbers are split into several tokens by BPE tokenizers.
		if digits > digitsPerToken {
			digitTokens += (digits - 1) / digitsPerToken
		}
	}

	dominant, best := ScriptLatin, 0
	for s, n := range letters {
		if n > best || (n == best && s < dominant) {
			dominant, best = s, n
		}
	}

	estimate := float64(words)*h.multiplier(dominant) +
		float64(cjk)*h.multiplier(ScriptCJK) +
		float64(punct)*punctuationPenalty +
		float64(digitTokens)
	return max(1, int(math.Ceil(estimate)))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func scriptOf(r rune) Script {
	switch {
	case unicode.Is(unicode.Latin, r):
		return ScriptLatin
	case unicode.Is(unicode.Cyrillic, r):
		return ScriptCyrillic
	case unicode.Is(unicode.Greek, r):
		return ScriptGreek
	case unicode.Is(unicode.Arabic, r):
		return ScriptArabic
	case unicode.Is(unicode.Hebrew, r):
		return ScriptHebrew
	case unicode.Is(unicode.Devanagari, r):
		return ScriptDevanagari
	case unicode.Is(unicode.Thai, r):
		return ScriptThai
	}
	return ScriptOther
}

// TiktokenEstimator counts tokens exactly with a BPE encoding.
type TiktokenEstimator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding, e.g. "cl100k_base".
// The encoding's rank file is fetched on first use unless cached locally.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownEncoding, encoding, err)
	}
	return &TiktokenEstimator{enc: enc}, nil
}

func (t *TiktokenEstimator) EstimateTokens(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return max(1, len(t.enc.Encode(text, nil, nil)))
}
