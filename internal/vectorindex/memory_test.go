package vectorindex

import (
	"context"
	"testing"

	"github.com/chitose/kotae/internal/models"
)

func passage(doc string, idx int, vec []float32) *models.Passage {
	return models.NewPassage(doc, idx, "text", vec)
}

func TestMemoryIndexUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	if err := idx.EnsureReady(ctx, 2); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}

	if err := idx.Upsert(ctx, []*models.Passage{passage("a.txt", 0, []float32{1, 0})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	// Same (document, chunk) pair gets the same ID, so this overwrites.
	if err := idx.Upsert(ctx, []*models.Passage{passage("a.txt", 0, []float32{0, 1})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1 after overwrite", n)
	}

	hits, err := idx.Search(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Score < 0.99 {
		t.Errorf("expected the overwritten vector to match, got %+v", hits)
	}
}

func TestMemoryIndexSearchOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	if err := idx.EnsureReady(ctx, 2); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	err := idx.Upsert(ctx, []*models.Passage{
		passage("a.txt", 0, []float32{1, 0}),
		passage("a.txt", 1, []float32{0.6, 0.8}),
		passage("b.txt", 0, []float32{0, 1}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Passage.ChunkIndex != 0 || hits[0].Passage.SourceDoc != "a.txt" {
		t.Errorf("best hit = %+v", hits[0].Passage)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits out of order: %f then %f", hits[0].Score, hits[1].Score)
	}
}

func TestMemoryIndexSearchEmpty(t *testing.T) {
	idx := NewMemoryIndex()
	hits, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits != nil {
		t.Errorf("expected no hits from empty index, got %v", hits)
	}
}

func TestMemoryIndexDeleteDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	if err := idx.EnsureReady(ctx, 2); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	err := idx.Upsert(ctx, []*models.Passage{
		passage("a.txt", 0, []float32{1, 0}),
		passage("a.txt", 1, []float32{0, 1}),
		passage("b.txt", 0, []float32{1, 1}),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := idx.DeleteDocument(ctx, "a.txt"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	n, _ := idx.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want 1 after delete", n)
	}
	hits, _ := idx.Search(ctx, []float32{1, 0}, 5)
	for _, h := range hits {
		if h.Passage.SourceDoc == "a.txt" {
			t.Errorf("deleted document still in results: %+v", h.Passage)
		}
	}
}

func TestMemoryIndexDimensionConflict(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	if err := idx.EnsureReady(ctx, 4); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if err := idx.EnsureReady(ctx, 8); err == nil {
		t.Error("expected a dimension conflict error")
	}
	if err := idx.Upsert(ctx, []*models.Passage{passage("a.txt", 0, []float32{1, 0})}); err == nil {
		t.Error("expected a vector dimension error")
	}
}
