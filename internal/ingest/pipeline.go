// Package ingest loads corpus documents, chunks them, embeds the chunks, and
// writes the resulting passages to the vector index.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chitose/kotae/internal/chunker"
	"github.com/chitose/kotae/internal/embedding"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/storage"
	"github.com/chitose/kotae/internal/vectorindex"
)

// Failure records one document that could not be ingested.
type Failure struct {
	Document string `json:"document"`
	Reason   string `json:"reason"`
}

// Report summarizes one ingestion run. A run with failures still ingests
// every other document; callers inspect Failures to see what was left out.
type Report struct {
	Ingested  int       `json:"ingested"`
	Skipped   int       `json:"skipped"`
	Passages  int       `json:"passages"`
	Failures  []Failure `json:"failures,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Pipeline ingests documents. Documents are processed by a bounded worker
// pool; a failing document is recorded and skipped, never aborting the run.
type Pipeline struct {
	chunker     *chunker.Chunker
	embedder    embedding.Embedder
	index       vectorindex.Index
	catalog     *storage.Catalog
	concurrency int
	logger      *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a logger for per-document debug events.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(ch *chunker.Chunker, emb embedding.Embedder, idx vectorindex.Index, cat *storage.Catalog, concurrency int, opts ...Option) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pipeline{
		chunker:     ch,
		embedder:    emb,
		index:       idx,
		catalog:     cat,
		concurrency: concurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestDocuments ingests docs and returns a report. Unchanged documents
// (same content hash as the catalog) are skipped. Per-document errors are
// collected in the report.
func (p *Pipeline) IngestDocuments(ctx context.Context, docs []*models.CorpusDocument) *Report {
	start := time.Now()
	report := &Report{}
	if len(docs) == 0 {
		report.ElapsedMS = time.Since(start).Milliseconds()
		return report
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan *models.CorpusDocument)

	workers := p.concurrency
	if workers > len(docs) {
		workers = len(docs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				passages, skipped, err := p.ingestOne(ctx, doc)
				mu.Lock()
				switch {
				case err != nil:
					report.Failures = append(report.Failures, Failure{Document: doc.ID, Reason: err.Error()})
				case skipped:
					report.Skipped++
				default:
					report.Ingested++
					report.Passages += passages
				}
				mu.Unlock()
			}
		}()
	}

	for _, doc := range docs {
		jobs <- doc
	}
	close(jobs)
	wg.Wait()

	report.ElapsedMS = time.Since(start).Milliseconds()
	if p.logger != nil {
		p.logger.Info("ingestion finished",
			zap.Int("ingested", report.Ingested),
			zap.Int("skipped", report.Skipped),
			zap.Int("passages", report.Passages),
			zap.Int("failures", len(report.Failures)),
			zap.Int64("elapsed_ms", report.ElapsedMS))
	}
	return report
}

// ingestOne processes a single document. Re-ingesting produces the same
// passage IDs, so the index ends up with exactly one point per chunk no
// matter how often a document is ingested.
func (p *Pipeline) ingestOne(ctx context.Context, doc *models.CorpusDocument) (passages int, skipped bool, err error) {
	prev, err := p.catalog.GetDocument(ctx, doc.ID)
	if err != nil {
		return 0, false, fmt.Errorf("reading catalog: %w", err)
	}
	if prev != nil && prev.ContentHash == doc.ContentHash {
		if p.logger != nil {
			p.logger.Debug("document unchanged, skipping", zap.String("document", doc.ID))
		}
		return 0, true, nil
	}

	spans := p.chunker.Chunk(doc.Text)
	if len(spans) == 0 {
		// Empty document: drop any previously ingested passages.
		if prev != nil && prev.ChunkCount > 0 {
			if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
				return 0, false, err
			}
		}
		return 0, false, p.catalog.UpsertDocument(ctx, p.record(doc, 0))
	}

	vectors, err := p.embedder.EmbedBatch(ctx, spans)
	if err != nil {
		return 0, false, err
	}

	batch := make([]*models.Passage, len(spans))
	for i, span := range spans {
		batch[i] = models.NewPassage(doc.ID, i, span, vectors[i])
	}

	// A shrunk document leaves stale points at higher chunk indexes; clear
	// them before writing the new set.
	if prev != nil && prev.ChunkCount > len(spans) {
		if err := p.index.DeleteDocument(ctx, doc.ID); err != nil {
			return 0, false, err
		}
	}
	if err := p.index.Upsert(ctx, batch); err != nil {
		return 0, false, err
	}
	if err := p.catalog.UpsertDocument(ctx, p.record(doc, len(spans))); err != nil {
		return 0, false, err
	}

	if p.logger != nil {
		p.logger.Debug("document ingested",
			zap.String("document", doc.ID),
			zap.Int("passages", len(spans)))
	}
	return len(spans), false, nil
}

func (p *Pipeline) record(doc *models.CorpusDocument, chunkCount int) *storage.DocumentRecord {
	return &storage.DocumentRecord{
		ID:          doc.ID,
		Path:        doc.Path,
		ContentHash: doc.ContentHash,
		SizeBytes:   doc.SizeBytes,
		ModTime:     doc.ModTime,
		ChunkCount:  chunkCount,
	}
}

// IngestDirectory loads every matching file under dir and ingests it.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, extensions []string) (*Report, error) {
	docs, err := LoadDirectory(dir, extensions)
	if err != nil {
		return nil, err
	}
	return p.IngestDocuments(ctx, docs), nil
}

// IngestFile loads and ingests a single file.
func (p *Pipeline) IngestFile(ctx context.Context, baseDir, path string) (*Report, error) {
	doc, err := LoadFile(baseDir, path)
	if err != nil {
		return nil, err
	}
	return p.IngestDocuments(ctx, []*models.CorpusDocument{doc}), nil
}

// DeleteDocument removes a document's passages from the index and its record
// from the catalog.
func (p *Pipeline) DeleteDocument(ctx context.Context, id string) error {
	if err := p.index.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := p.catalog.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if p.logger != nil {
		p.logger.Debug("document removed", zap.String("document", id))
	}
	return nil
}

// DeleteDocumentByPath removes the document identified by a corpus file path.
func (p *Pipeline) DeleteDocumentByPath(ctx context.Context, baseDir, path string) error {
	return p.DeleteDocument(ctx, DocumentID(baseDir, path))
}
