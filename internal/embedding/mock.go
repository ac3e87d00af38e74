package embedding

import (
	"context"
	"strings"

	"github.com/chitose/kotae/pkg/utils"
)

const mockPunctuation = ".,!?;:\"'()[]"

// MockEmbedder is a deterministic in-process embedder for tests. Each word is
// hashed into a dimension bucket, so texts sharing words get similar vectors
// and cosine scores behave like a (crude) semantic ranking. Empty text maps to
// the zero vector.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a mock embedder of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a normalized bag-of-words vector. The same text always yields
// the same vector.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(strings.ToLower(text)) {
		word = strings.Trim(word, mockPunctuation)
		if word == "" {
			continue
		}
		emb[int(HashString(word)%uint32(e.dimensions))]++
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
