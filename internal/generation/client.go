// Package generation calls a local LLM server to produce answers. Backends
// cover Ollama's generate API and OpenAI-compatible chat completion APIs.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/retry"
)

// ErrUnavailable marks generation failures: the model endpoint is down, timed
// out, or rejected the request. Transient cases are retried once within the
// policy; the caller reports the service as unable to answer, never the raw
// backend detail.
var ErrUnavailable = errors.New("generation service unavailable")

// Client produces an answer for an assembled prompt. The returned text is the
// model output as-is; callers decide about trimming or formatting.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
	Close() error
}

// New creates the generation client selected by cfg.Provider.
func New(cfg *config.GenerationConfig, policy retry.Policy) (Client, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaClient(cfg, policy), nil
	case "openai":
		return NewOpenAIClient(cfg, policy), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
