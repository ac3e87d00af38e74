// Package qa orchestrates a question through retrieval, prompt assembly, and
// generation.
package qa

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/generation"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/prompt"
	"github.com/chitose/kotae/internal/retrieval"
	"github.com/chitose/kotae/pkg/utils"
)

// Query lifecycle stages, logged as each query moves through the pipeline.
// A query that found no passages still generates: the model gets the
// no-context prompt and says it cannot answer. Failures are terminal, there
// is no partial answer.
const (
	stageReceived     = "received"
	stageRetrieving   = "retrieving"
	stageEmptyContext = "empty_context"
	stageContextFound = "context_found"
	stageGenerating   = "generating"
	stageResponding   = "responding"
	stageFailed       = "failed"
)

// Engine answers questions over the ingested corpus.
type Engine struct {
	retriever *retrieval.Retriever
	assembler *prompt.Assembler
	generator generation.Client
	topK      int
	minScore  float64
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for query stage transitions.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates the query engine. Retrieval bounds (top_k, min_score)
// come from config and apply to every question.
func NewEngine(r *retrieval.Retriever, a *prompt.Assembler, g generation.Client, cfg *config.RetrievalConfig, opts ...Option) *Engine {
	e := &Engine{
		retriever: r,
		assembler: a,
		generator: g,
		topK:      cfg.TopK,
		minScore:  cfg.MinScore,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ask answers a question. A blank question returns ErrBadRequest without
// touching the index. Any other error means the query failed; no partial
// answer is produced.
func (e *Engine) Ask(ctx context.Context, question string) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrBadRequest
	}
	e.stage(stageReceived, question)

	e.stage(stageRetrieving, question)
	passages, err := e.retriever.Retrieve(ctx, question, e.topK, e.minScore)
	if err != nil {
		e.stage(stageFailed, question, zap.Error(err))
		return nil, err
	}
	if len(passages) == 0 {
		e.stage(stageEmptyContext, question)
	} else {
		e.stage(stageContextFound, question, zap.Int("passages", len(passages)))
	}

	assembled := e.assembler.Assemble(question, passages)

	e.stage(stageGenerating, question, zap.Int("prompt_chars", len(assembled.Text)))
	raw, err := e.generator.Generate(ctx, assembled.Text)
	if err != nil {
		e.stage(stageFailed, question, zap.Error(err))
		return nil, err
	}

	e.stage(stageResponding, question)
	return &models.Answer{
		Text:      strings.TrimSpace(raw),
		Citations: citations(assembled.Used),
	}, nil
}

// citations lists the distinct source documents behind the used passages, in
// the order they appear in the prompt.
func citations(used []*models.ScoredPassage) []string {
	var docs []string
	seen := make(map[string]bool)
	for _, sp := range used {
		if seen[sp.Passage.SourceDoc] {
			continue
		}
		seen[sp.Passage.SourceDoc] = true
		docs = append(docs, sp.Passage.SourceDoc)
	}
	return docs
}

func (e *Engine) stage(stage, question string, fields ...zap.Field) {
	if e.logger == nil {
		return
	}
	fields = append([]zap.Field{zap.String("stage", stage), zap.String("question", utils.Truncate(question, 120))}, fields...)
	e.logger.Debug("query stage", fields...)
}
