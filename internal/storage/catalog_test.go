package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalogUpsertGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	got, err := c.GetDocument(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown document, got %+v", got)
	}

	rec := &DocumentRecord{
		ID:          "a.txt",
		Path:        "/corpus/a.txt",
		ContentHash: "abc123",
		SizeBytes:   42,
		ModTime:     time.Now().Truncate(time.Second),
		ChunkCount:  3,
	}
	if err := c.UpsertDocument(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.IngestedAt.IsZero() {
		t.Error("IngestedAt should be set")
	}

	got, err = c.GetDocument(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got.ContentHash != "abc123" || got.ChunkCount != 3 {
		t.Errorf("got %+v", got)
	}

	// Upsert with the same ID replaces the record.
	rec.ContentHash = "def456"
	rec.ChunkCount = 5
	if err := c.UpsertDocument(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ = c.GetDocument(ctx, "a.txt")
	if got.ContentHash != "def456" || got.ChunkCount != 5 {
		t.Errorf("after upsert: %+v", got)
	}
	n, _ := c.CountDocuments(ctx)
	if n != 1 {
		t.Errorf("CountDocuments = %d, want 1", n)
	}
}

func TestCatalogDelete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_ = c.UpsertDocument(ctx, &DocumentRecord{ID: "a.txt", Path: "p", ContentHash: "h", ChunkCount: 1})
	if err := c.DeleteDocument(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	got, _ := c.GetDocument(ctx, "a.txt")
	if got != nil {
		t.Errorf("expected nil after delete, got %+v", got)
	}
	// Deleting again is fine.
	if err := c.DeleteDocument(ctx, "a.txt"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestCatalogCounts(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	chunks, err := c.CountChunks(ctx)
	if err != nil || chunks != 0 {
		t.Errorf("CountChunks on empty catalog: %v, %d", err, chunks)
	}

	_ = c.UpsertDocument(ctx, &DocumentRecord{ID: "a.txt", Path: "p", ContentHash: "h", ChunkCount: 3})
	_ = c.UpsertDocument(ctx, &DocumentRecord{ID: "b.txt", Path: "p", ContentHash: "h", ChunkCount: 4})

	docs, _ := c.CountDocuments(ctx)
	chunks, _ = c.CountChunks(ctx)
	if docs != 2 || chunks != 7 {
		t.Errorf("counts = %d docs, %d chunks, want 2 and 7", docs, chunks)
	}
}

func TestCatalogListDocuments(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_ = c.UpsertDocument(ctx, &DocumentRecord{ID: "b.txt", Path: "p", ContentHash: "h", ChunkCount: 1})
	_ = c.UpsertDocument(ctx, &DocumentRecord{ID: "a.txt", Path: "p", ContentHash: "h", ChunkCount: 1})

	list, err := c.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "a.txt" || list[1].ID != "b.txt" {
		t.Errorf("list = %+v", list)
	}
}

func TestCatalogVerifyEmbeddingModel(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	// First call pins the model.
	if err := c.VerifyEmbeddingModel(ctx, "nomic-embed-text", 768); err != nil {
		t.Fatal(err)
	}
	// Same model passes.
	if err := c.VerifyEmbeddingModel(ctx, "nomic-embed-text", 768); err != nil {
		t.Errorf("same model should verify: %v", err)
	}
	// Different model is rejected.
	if err := c.VerifyEmbeddingModel(ctx, "all-minilm", 768); err == nil {
		t.Error("expected an error for a different model")
	}
	// Different dimensions are rejected.
	if err := c.VerifyEmbeddingModel(ctx, "nomic-embed-text", 384); err == nil {
		t.Error("expected an error for different dimensions")
	}
}

func TestCatalogSizeBytes(t *testing.T) {
	c := newTestCatalog(t)
	_ = c.UpsertDocument(context.Background(), &DocumentRecord{ID: "a.txt", Path: "p", ContentHash: "h", ChunkCount: 1})
	if c.SizeBytes() <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", c.SizeBytes())
	}
}
