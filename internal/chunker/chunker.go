// Package chunker splits document text into bounded, overlapping passages.
package chunker

import (
	"strings"
	"unicode"
)

const defaultMaxChars = 1200

// Chunker splits text into spans of at most maxChars runes, with overlap runes
// shared between consecutive spans so context is not lost at boundaries.
type Chunker struct {
	maxChars int
	overlap  int
}

// New creates a chunker. Invalid sizes are clamped: maxChars must be positive
// and overlap must be smaller than maxChars.
func New(maxChars, overlapChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}
	return &Chunker{maxChars: maxChars, overlap: overlapChars}
}

// Chunk splits text into spans. Spans cover the whole text in order with
// exactly overlap runes repeated between consecutive spans, so concatenating
// the first span with each later span minus its leading overlap reconstructs
// the input. Empty or whitespace-only text yields nil. Cuts prefer a sentence
// end, then any whitespace, within a bounded look-back window; otherwise the
// span is cut hard at maxChars. Operating on runes keeps multi-byte
// characters intact.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.maxChars {
		return []string{text}
	}

	// The window is capped so each span advances past the overlap region,
	// guaranteeing forward progress.
	window := c.maxChars / 4
	if limit := c.maxChars - c.overlap - 1; window > limit {
		window = limit
	}
	if window < 0 {
		window = 0
	}

	var spans []string
	pos := 0
	for pos < len(runes) {
		end := pos + c.maxChars
		if end >= len(runes) {
			spans = append(spans, string(runes[pos:]))
			break
		}
		end = breakPoint(runes, end-window, end)
		spans = append(spans, string(runes[pos:end]))
		pos = end - c.overlap
	}
	return spans
}

// breakPoint returns the cut position in (lo, hi]: just after the last
// sentence terminator in the window, else just after the last whitespace,
// else hi.
func breakPoint(runes []rune, lo, hi int) int {
	for i := hi - 1; i >= lo; i-- {
		if isSentenceEnd(runes[i]) {
			return i + 1
		}
	}
	for i := hi - 1; i >= lo; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return hi
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
