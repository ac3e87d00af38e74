package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/pkg/utils"
)

// MemoryIndex is an in-memory brute-force index. It mirrors the upsert
// semantics of the Qdrant backend, so tests exercise the same contract the
// production index provides.
type MemoryIndex struct {
	dimensions int
	passages   map[string]*models.Passage
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index. Dimensions are fixed by
// the first EnsureReady call.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		passages: make(map[string]*models.Passage),
	}
}

// EnsureReady fixes the index dimensions. A later call with different
// dimensions fails like a Qdrant collection conflict would.
func (m *MemoryIndex) EnsureReady(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions == 0 {
		m.dimensions = dimensions
		return nil
	}
	if m.dimensions != dimensions {
		return fmt.Errorf("index holds %d-dimension vectors, embedder produces %d", m.dimensions, dimensions)
	}
	return nil
}

// Upsert stores passages keyed by ID, overwriting existing entries.
func (m *MemoryIndex) Upsert(ctx context.Context, passages []*models.Passage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range passages {
		if m.dimensions > 0 && len(p.Embedding) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Embedding), m.dimensions)
		}
		stored := *p
		stored.Embedding = make([]float32, len(p.Embedding))
		copy(stored.Embedding, p.Embedding)
		m.passages[p.ID] = &stored
	}
	return nil
}

// Search scores every stored passage by cosine similarity and returns the
// top k, best first. Ties break on passage ID so results are stable.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]*models.ScoredPassage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.passages) == 0 {
		return nil, nil
	}

	scored := make([]*models.ScoredPassage, 0, len(m.passages))
	for _, p := range m.passages {
		scored = append(scored, &models.ScoredPassage{
			Passage: p,
			Score:   utils.CosineSimilarity(vector, p.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Passage.ID < scored[j].Passage.ID
	})
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// DeleteDocument removes every passage from the named source document.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, sourceDoc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.passages {
		if p.SourceDoc == sourceDoc {
			delete(m.passages, id)
		}
	}
	return nil
}

// Count returns the number of stored passages.
func (m *MemoryIndex) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.passages)), nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}
