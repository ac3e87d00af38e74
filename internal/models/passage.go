// Package models defines core data structures for passages, corpus documents, and answers.
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// passageNamespace is the UUIDv5 namespace for passage ids. Fixed so that the
// same (source document, chunk index) pair always derives the same id.
var passageNamespace = uuid.MustParse("9c0e7f3a-5d1b-4f6e-8a2c-0d4b9e1f7a35")

// Passage is a bounded span of a source document stored with its embedding.
type Passage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SourceDoc  string    `json:"source_document"`
	ChunkIndex int       `json:"chunk_index"`
	Embedding  []float32 `json:"-"`
}

// PassageID derives the stable passage id for a (source document, chunk index)
// pair. The id is a UUIDv5, which the vector index accepts as a point id, and
// re-deriving it for unchanged input always yields the same value.
func PassageID(sourceDoc string, chunkIndex int) string {
	return uuid.NewSHA1(passageNamespace, []byte(fmt.Sprintf("%s#%d", sourceDoc, chunkIndex))).String()
}

// NewPassage builds a passage with its derived id.
func NewPassage(sourceDoc string, chunkIndex int, text string, embedding []float32) *Passage {
	return &Passage{
		ID:         PassageID(sourceDoc, chunkIndex),
		Text:       text,
		SourceDoc:  sourceDoc,
		ChunkIndex: chunkIndex,
		Embedding:  embedding,
	}
}

// ScoredPassage is a retrieval hit: a passage with its similarity score.
type ScoredPassage struct {
	Passage *Passage `json:"passage"`
	Score   float64  `json:"score"`
}
