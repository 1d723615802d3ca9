// Package tokenizer provides conservative token-count estimation for
// context budget management, grounded on the kernel's "count_tokens"
// reference implementation: a real encoder when available, a chars/3
// heuristic otherwise, both inflated by a fixed safety margin to absorb
// tokenizer mismatch between the estimator and whatever model actually
// consumes the rendered context.
package tokenizer

import "unicode/utf8"

// safetyMargin absorbs drift between this estimator and the model's real
// tokenizer. 1.75x is conservative enough that admission/eviction decisions
// made against it rarely under-count a real BPE tokenizer.
const safetyMargin = 1.75

// Encoder produces the token ids a real tokenizer would emit. Kernels that
// embed a reference BPE table can supply one; the zero value (nil Encoder)
// falls back to the chars/3 heuristic.
type Encoder interface {
	Encode(text string) []int
}

// Counter counts tokens for text, optionally backed by a real Encoder.
type Counter struct {
	encoder Encoder
}

// New returns a Counter. Pass nil to use the heuristic fallback only.
func New(encoder Encoder) *Counter {
	return &Counter{encoder: encoder}
}

// CountTokens estimates the number of tokens in text, applying the safety
// margin. Returns 0 for empty or whitespace-only input, otherwise at least 1.
func (c *Counter) CountTokens(text string) int {
	if isBlank(text) {
		return 0
	}

	var raw int
	if c.encoder != nil {
		if ids := c.encoder.Encode(text); len(ids) > 0 {
			raw = int(float64(len(ids)) * safetyMargin)
		}
	}
	if raw == 0 {
		runes := utf8.RuneCountInString(text)
		raw = int(float64((runes+2)/3) * safetyMargin)
	}
	if raw < 1 {
		raw = 1
	}
	return raw
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// Default is a package-level Counter using only the heuristic fallback,
// convenient for callers that have no reference encoder wired up.
var Default = New(nil)

// CountTokens estimates tokens using the package-level default counter.
func CountTokens(text string) int {
	return Default.CountTokens(text)
}
