// Package prompt builds the generation prompt from retrieved passages.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chitose/kotae/internal/models"
)

// instruction is always present, with or without context. The model must
// answer only from the provided passages and admit when they don't cover the
// question.
const instruction = "You are a question answering assistant. Answer using ONLY the context passages below. " +
	"If the context does not contain the answer, say you do not know. Do not use outside knowledge."

// noContextNotice replaces the passage list when retrieval found nothing, so
// the model sees explicitly that the corpus had no relevant material instead
// of a silently empty section.
const noContextNotice = "No relevant context was found in the document corpus for this question."

// Prompt is an assembled generation prompt plus the passages that made it in,
// in the order they appear. Truncated passages are absent from Used.
type Prompt struct {
	Text string
	Used []*models.ScoredPassage
}

// Assembler formats passages into a bounded prompt. maxContextChars bounds
// the passage section only; the instruction and question framing sit on top.
type Assembler struct {
	maxContextChars int
}

// NewAssembler creates an assembler with the given context budget.
func NewAssembler(maxContextChars int) *Assembler {
	if maxContextChars <= 0 {
		maxContextChars = 6000
	}
	return &Assembler{maxContextChars: maxContextChars}
}

// Assemble builds the prompt for a question. Passages are ordered by score,
// best first, and each is tagged with its source document and chunk index so
// answers can cite. When the budget runs out, whole passages are dropped from
// the tail; a passage is never cut mid-text.
func (a *Assembler) Assemble(question string, passages []*models.ScoredPassage) *Prompt {
	ordered := make([]*models.ScoredPassage, len(passages))
	copy(ordered, passages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var blocks []string
	var used []*models.ScoredPassage
	budget := a.maxContextChars
	for _, sp := range ordered {
		block := fmt.Sprintf("[%s#%d] %s", sp.Passage.SourceDoc, sp.Passage.ChunkIndex, sp.Passage.Text)
		cost := len(block) + 2
		if cost > budget {
			break
		}
		blocks = append(blocks, block)
		used = append(used, sp)
		budget -= cost
	}

	context := noContextNotice
	if len(blocks) > 0 {
		context = strings.Join(blocks, "\n\n")
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")

	return &Prompt{Text: b.String(), Used: used}
}

// MaxContextChars returns the configured passage budget.
func (a *Assembler) MaxContextChars() int {
	return a.maxContextChars
}

// Overhead returns the fixed prompt size outside the passage section for a
// given question, useful for reasoning about total prompt length.
func Overhead(question string) int {
	return len(instruction) + len("\n\nContext:\n") + len("\n\nQuestion: ") + len(question) + len("\n\nAnswer:")
}
