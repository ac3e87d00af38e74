// Package retrieval finds the passages most relevant to a question.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chitose/kotae/internal/embedding"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/vectorindex"
)

// Retriever embeds a question once and searches the vector index for its
// nearest passages.
type Retriever struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets a logger for per-query debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever over the given embedder and index.
func NewRetriever(emb embedding.Embedder, idx vectorindex.Index, opts ...Option) *Retriever {
	r := &Retriever{embedder: emb, index: idx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to k passages scoring at least minScore against the
// query, best first. An empty result is a normal outcome, not an error: the
// corpus may be empty or simply hold nothing relevant.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]*models.ScoredPassage, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	passages := make([]*models.ScoredPassage, 0, len(hits))
	for _, hit := range hits {
		if hit.Score < minScore {
			continue
		}
		passages = append(passages, hit)
	}

	if r.logger != nil {
		r.logger.Debug("retrieval complete",
			zap.Int("hits", len(hits)),
			zap.Int("above_min_score", len(passages)),
			zap.Int("top_k", k),
			zap.Float64("min_score", minScore))
	}
	return passages, nil
}
