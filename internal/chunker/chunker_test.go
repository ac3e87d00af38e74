package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// reconstruct joins spans back into the original text by dropping the leading
// overlap runes from every span after the first.
func reconstruct(spans []string, overlap int) string {
	if len(spans) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(spans[0])
	for _, s := range spans[1:] {
		runes := []rune(s)
		if len(runes) < overlap {
			return ""
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}

func TestChunkEmpty(t *testing.T) {
	c := New(100, 20)
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		if spans := c.Chunk(text); spans != nil {
			t.Errorf("Chunk(%q) = %v, want nil", text, spans)
		}
	}
}

func TestChunkShortText(t *testing.T) {
	c := New(100, 20)
	text := "A short paragraph that fits in one span."
	spans := c.Chunk(text)
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0] != text {
		t.Errorf("span = %q, want %q", spans[0], text)
	}
}

func TestChunkSentenceBoundaries(t *testing.T) {
	text := "The sky is blue. Grass is green. Snow is white."
	c := New(20, 4)
	spans := c.Chunk(text)

	want := []string{
		"The sky is blue.",
		"lue. Grass is green.",
		"een. Snow is white.",
	}
	if len(spans) != len(want) {
		t.Fatalf("got %d spans %q, want %d", len(spans), spans, len(want))
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %q, want %q", i, spans[i], want[i])
		}
	}
	if got := reconstruct(spans, 4); got != text {
		t.Errorf("reconstructed %q, want %q", got, text)
	}
}

func TestChunkOverlapExact(t *testing.T) {
	text := strings.Repeat("Some words here make sentences. ", 40)
	overlap := 25
	c := New(150, overlap)
	spans := c.Chunk(text)
	if len(spans) < 2 {
		t.Fatalf("expected multiple spans, got %d", len(spans))
	}
	for i := 1; i < len(spans); i++ {
		prev := []rune(spans[i-1])
		cur := []rune(spans[i])
		tail := string(prev[len(prev)-overlap:])
		head := string(cur[:overlap])
		if tail != head {
			t.Errorf("span %d overlap mismatch: tail %q, head %q", i, tail, head)
		}
	}
}

func TestChunkReconstruction(t *testing.T) {
	base := "Retrieval systems index passages of text. Each passage keeps enough " +
		"context to stand alone. Answers cite the passages they came from.\n"
	text := strings.Repeat(base, 30)

	cases := []struct {
		maxChars int
		overlap  int
	}{
		{100, 0},
		{200, 50},
		{333, 41},
		{1200, 200},
	}
	for _, tc := range cases {
		c := New(tc.maxChars, tc.overlap)
		spans := c.Chunk(text)
		if got := reconstruct(spans, tc.overlap); got != text {
			t.Errorf("max=%d overlap=%d: reconstruction mismatch (%d spans)",
				tc.maxChars, tc.overlap, len(spans))
		}
		for i, s := range spans {
			if n := utf8.RuneCountInString(s); n > tc.maxChars {
				t.Errorf("max=%d overlap=%d: span %d has %d runes", tc.maxChars, tc.overlap, i, n)
			}
		}
	}
}

func TestChunkNoBoundaries(t *testing.T) {
	text := strings.Repeat("a", 100)
	c := New(30, 5)
	spans := c.Chunk(text)
	wantLens := []int{30, 30, 30, 25}
	if len(spans) != len(wantLens) {
		t.Fatalf("got %d spans, want %d", len(spans), len(wantLens))
	}
	for i, s := range spans {
		if len(s) != wantLens[i] {
			t.Errorf("span %d length = %d, want %d", i, len(s), wantLens[i])
		}
	}
	if got := reconstruct(spans, 5); got != text {
		t.Errorf("reconstruction mismatch")
	}
}

func TestChunkMultiByte(t *testing.T) {
	text := strings.Repeat("日本語の文章です", 20)
	c := New(25, 4)
	spans := c.Chunk(text)
	if len(spans) < 2 {
		t.Fatalf("expected multiple spans, got %d", len(spans))
	}
	for i, s := range spans {
		if !utf8.ValidString(s) {
			t.Errorf("span %d is not valid UTF-8", i)
		}
	}
	if got := reconstruct(spans, 4); got != text {
		t.Errorf("reconstruction mismatch")
	}
}

func TestNewClampsInvalidSizes(t *testing.T) {
	// Overlap >= maxChars would stall the scan; New must reduce it.
	c := New(50, 50)
	text := strings.Repeat("words and more words. ", 30)
	spans := c.Chunk(text)
	if len(spans) < 2 {
		t.Fatalf("expected multiple spans, got %d", len(spans))
	}

	c = New(0, -3)
	if spans := c.Chunk("short"); len(spans) != 1 {
		t.Errorf("expected 1 span from clamped chunker, got %d", len(spans))
	}
}
