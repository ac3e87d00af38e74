package e2e

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/chitose/kotae/internal/chunker"
	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/embedding"
	"github.com/chitose/kotae/internal/generation"
	"github.com/chitose/kotae/internal/ingest"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/prompt"
	"github.com/chitose/kotae/internal/qa"
	"github.com/chitose/kotae/internal/retrieval"
	"github.com/chitose/kotae/internal/storage"
	"github.com/chitose/kotae/internal/vectorindex"
)

// capturingGenerator records every prompt it receives and returns a scripted
// reply, so tests can assert on what context actually reached the model.
type capturingGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (g *capturingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *capturingGenerator) Model() string { return "scripted" }
func (g *capturingGenerator) Close() error  { return nil }

func (g *capturingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func (g *capturingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// stack is the full ask pipeline wired over in-memory backends: mock
// embedder, memory vector index, sqlite catalog in a temp dir.
type stack struct {
	catalog  *storage.Catalog
	index    *vectorindex.MemoryIndex
	pipeline *ingest.Pipeline
	engine   *qa.Engine
	gen      *capturingGenerator
	cfg      *config.Config
}

func newStack(t *testing.T, gen *capturingGenerator) *stack {
	t.Helper()

	catalog, err := storage.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("creating catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	embedder := embedding.NewMockEmbedder(128)
	index := vectorindex.NewMemoryIndex()
	if err := index.EnsureReady(context.Background(), embedder.Dimensions()); err != nil {
		t.Fatalf("preparing index: %v", err)
	}

	// Corpus documents are short enough to stay single chunks at 400 chars,
	// and ten retrieved passages fit the context budget, so every hit can be
	// cited.
	cfg := &config.Config{
		Retrieval: config.RetrievalConfig{TopK: 10, MinScore: 0},
		Chunking:  config.ChunkingConfig{MaxChars: 400, OverlapChars: 80},
		Prompt:    config.PromptConfig{MaxContextChars: 6000},
	}

	pipe := ingest.NewPipeline(chunker.New(cfg.Chunking.MaxChars, cfg.Chunking.OverlapChars), embedder, index, catalog, 2)
	engine := qa.NewEngine(
		retrieval.NewRetriever(embedder, index),
		prompt.NewAssembler(cfg.Prompt.MaxContextChars),
		gen,
		&cfg.Retrieval,
	)

	return &stack{catalog: catalog, index: index, pipeline: pipe, engine: engine, gen: gen, cfg: cfg}
}

func corpusDocument(id, text string) *models.CorpusDocument {
	c := &Corpus{Documents: []Document{{ID: id, Text: text}}}
	return c.ToCorpusDocuments()[0]
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func TestAsk_AnswersFromCorpus(t *testing.T) {
	gen := &capturingGenerator{reply: "scripted answer"}
	st := newStack(t, gen)
	corpus := BuildCorpus()

	report := st.pipeline.IngestDocuments(context.Background(), corpus.ToCorpusDocuments())
	if len(report.Failures) > 0 {
		t.Fatalf("ingest failures: %+v", report.Failures)
	}
	if report.Ingested != len(corpus.Documents) {
		t.Fatalf("ingested: got %d, want %d", report.Ingested, len(corpus.Documents))
	}

	for _, tc := range corpus.Cases {
		t.Run(tc.Description, func(t *testing.T) {
			ans, err := st.engine.Ask(context.Background(), tc.Question)
			if err != nil {
				t.Fatalf("ask %q: %v", tc.Question, err)
			}
			p := gen.lastPrompt()
			if !strings.Contains(p, tc.ExpectedPhrase) {
				t.Errorf("prompt for %q does not contain %q", tc.Question, tc.ExpectedPhrase)
			}
			if !containsString(ans.Citations, tc.ExpectedDoc) {
				t.Errorf("citations %v do not include %s", ans.Citations, tc.ExpectedDoc)
			}
			if max := st.cfg.Prompt.MaxContextChars + prompt.Overhead(tc.Question); len(p) > max {
				t.Errorf("prompt length %d exceeds bound %d", len(p), max)
			}
		})
	}
}

func TestAsk_SkyIsBlue(t *testing.T) {
	gen := &capturingGenerator{reply: "  The sky is blue.\n"}
	st := newStack(t, gen)

	doc := corpusDocument("facts/sky.txt",
		"The sky is blue. On a clear day it looks blue because air scatters short wavelengths of sunlight more than long ones.")
	report := st.pipeline.IngestDocuments(context.Background(), []*models.CorpusDocument{doc})
	if len(report.Failures) > 0 {
		t.Fatalf("ingest failures: %+v", report.Failures)
	}

	ans, err := st.engine.Ask(context.Background(), "What colour is the sky?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "The sky is blue." {
		t.Errorf("answer: got %q, want %q", ans.Text, "The sky is blue.")
	}
	if !strings.Contains(gen.lastPrompt(), "[facts/sky.txt#0]") {
		t.Errorf("prompt missing the tagged passage:\n%s", gen.lastPrompt())
	}
	if len(ans.Citations) != 1 || ans.Citations[0] != "facts/sky.txt" {
		t.Errorf("citations: got %v, want [facts/sky.txt]", ans.Citations)
	}
}

func TestAsk_EmptyCorpus(t *testing.T) {
	gen := &capturingGenerator{reply: "I do not know."}
	st := newStack(t, gen)

	ans, err := st.engine.Ask(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("ask over empty corpus: %v", err)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator calls: got %d, want 1", gen.callCount())
	}
	if !strings.Contains(gen.lastPrompt(), "No relevant context was found") {
		t.Errorf("prompt missing the empty-context notice:\n%s", gen.lastPrompt())
	}
	if ans.Text != "I do not know." {
		t.Errorf("answer: got %q, want %q", ans.Text, "I do not know.")
	}
	if len(ans.Citations) != 0 {
		t.Errorf("citations over empty corpus: got %v, want none", ans.Citations)
	}
}

func TestAsk_BlankQuestion(t *testing.T) {
	gen := &capturingGenerator{reply: "unused"}
	st := newStack(t, gen)

	_, err := st.engine.Ask(context.Background(), "   \n\t")
	if !errors.Is(err, qa.ErrBadRequest) {
		t.Fatalf("error: got %v, want ErrBadRequest", err)
	}
	if gen.callCount() != 0 {
		t.Errorf("generator calls for blank question: got %d, want 0", gen.callCount())
	}
}

func TestIngest_Idempotent(t *testing.T) {
	st := newStack(t, &capturingGenerator{reply: "ok"})
	corpus := BuildCorpus()
	docs := corpus.ToCorpusDocuments()
	ctx := context.Background()

	first := st.pipeline.IngestDocuments(ctx, docs)
	if first.Ingested != len(docs) || len(first.Failures) > 0 {
		t.Fatalf("first run: ingested %d of %d, failures %+v", first.Ingested, len(docs), first.Failures)
	}
	before, err := st.index.Count(ctx)
	if err != nil {
		t.Fatalf("counting points: %v", err)
	}

	second := st.pipeline.IngestDocuments(ctx, docs)
	if second.Skipped != len(docs) {
		t.Errorf("second run skipped: got %d, want %d", second.Skipped, len(docs))
	}
	if second.Ingested != 0 {
		t.Errorf("second run ingested: got %d, want 0", second.Ingested)
	}

	after, err := st.index.Count(ctx)
	if err != nil {
		t.Fatalf("counting points: %v", err)
	}
	if after != before {
		t.Errorf("index points changed on re-ingest: %d -> %d", before, after)
	}

	n, err := st.catalog.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("counting documents: %v", err)
	}
	if n != int64(len(docs)) {
		t.Errorf("catalog documents: got %d, want %d", n, len(docs))
	}
}

func TestIngest_UpdatedDocumentReplacesPassages(t *testing.T) {
	gen := &capturingGenerator{reply: "ok"}
	st := newStack(t, gen)
	ctx := context.Background()

	first := corpusDocument("notes/city.txt", "The capital of Australia is Canberra.")
	if report := st.pipeline.IngestDocuments(ctx, []*models.CorpusDocument{first}); report.Ingested != 1 {
		t.Fatalf("initial ingest: %+v", report)
	}

	updated := corpusDocument("notes/city.txt",
		"The capital of Australia is Canberra, chosen as a compromise between Sydney and Melbourne.")
	report := st.pipeline.IngestDocuments(ctx, []*models.CorpusDocument{updated})
	if report.Ingested != 1 || report.Skipped != 0 {
		t.Fatalf("re-ingest of changed document: %+v", report)
	}

	count, err := st.index.Count(ctx)
	if err != nil {
		t.Fatalf("counting points: %v", err)
	}
	if count != 1 {
		t.Errorf("index points after update: got %d, want 1", count)
	}

	if _, err := st.engine.Ask(ctx, "Why was Canberra chosen as the capital of Australia?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(gen.lastPrompt(), "compromise between Sydney and Melbourne") {
		t.Errorf("prompt does not reflect the updated document:\n%s", gen.lastPrompt())
	}
}

func TestAsk_GenerationFailure(t *testing.T) {
	gen := &capturingGenerator{err: fmt.Errorf("model backend gone: %w", generation.ErrUnavailable)}
	st := newStack(t, gen)

	doc := corpusDocument("facts/sky.txt", "The sky is blue.")
	if report := st.pipeline.IngestDocuments(context.Background(), []*models.CorpusDocument{doc}); report.Ingested != 1 {
		t.Fatalf("ingest: %+v", report)
	}

	ans, err := st.engine.Ask(context.Background(), "What colour is the sky?")
	if err == nil {
		t.Fatal("expected an error when generation is down")
	}
	if !errors.Is(err, generation.ErrUnavailable) {
		t.Errorf("error chain: got %v, want generation.ErrUnavailable", err)
	}
	if ans != nil {
		t.Errorf("no partial answer expected, got %+v", ans)
	}
}

func TestIngestDirectory_FromFiles(t *testing.T) {
	gen := &capturingGenerator{reply: "scripted"}
	st := newStack(t, gen)
	corpus := BuildCorpus()

	dir := filepath.Join(t.TempDir(), "corpus")
	if err := corpus.WriteFiles(dir); err != nil {
		t.Fatalf("writing corpus files: %v", err)
	}

	report, err := st.pipeline.IngestDirectory(context.Background(), dir, []string{".txt"})
	if err != nil {
		t.Fatalf("ingest directory: %v", err)
	}
	if report.Ingested != len(corpus.Documents) {
		t.Fatalf("ingested: got %d, want %d", report.Ingested, len(corpus.Documents))
	}

	ans, err := st.engine.Ask(context.Background(), "How many hearts does an octopus have?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !containsString(ans.Citations, "animals/octopus.txt") {
		t.Errorf("citations %v missing animals/octopus.txt", ans.Citations)
	}
}
