// Package embedding turns text into fixed-dimension vectors. Backends cover a
// local Ollama server, OpenAI-compatible HTTP APIs, in-process ONNX inference,
// and a deterministic mock for tests.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chitose/kotae/internal/config"
)

// ErrFailed marks embedding errors. Callers check it with errors.Is; embedding
// calls are never retried, a failing model is treated as fatal for the request.
var ErrFailed = errors.New("embedding failed")

// Embedder produces vector embeddings for text. The same embedder instance is
// used for both ingestion and queries so vectors stay comparable. Embedding an
// empty string returns a deterministic vector, never an error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New creates the embedder selected by cfg.Provider.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaEmbedder(cfg.URL, cfg.Model, cfg.Dimensions, timeout, cfg.CacheSize), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.URL, cfg.Model, cfg.APIKey, cfg.Dimensions, timeout, cfg.CacheSize), nil
	case "onnx":
		return NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// VerifyDimensions embeds a probe text and compares the vector size with the
// configured dimensions. Run once at startup: a model whose output does not
// match the index dimensions must stop the service before any data is written.
func VerifyDimensions(ctx context.Context, e Embedder) error {
	vec, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probing embedding model: %w", err)
	}
	if len(vec) != e.Dimensions() {
		return fmt.Errorf("embedding model produced %d dimensions, configured for %d", len(vec), e.Dimensions())
	}
	return nil
}
