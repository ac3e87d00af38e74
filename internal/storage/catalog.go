// Package storage persists the ingest catalog: which documents were ingested,
// their content hashes, and the embedding model that produced the vectors.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	metaEmbeddingModel      = "embedding_model"
	metaEmbeddingDimensions = "embedding_dimensions"
)

// DocumentRecord is one ingested document in the catalog.
type DocumentRecord struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
	ChunkCount  int       `json:"chunk_count"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Catalog records ingested documents in SQLite. The content hash lets the
// pipeline skip unchanged documents, and the chunk count tells it when a
// shrunk document left stale passages behind in the vector index.
type Catalog struct {
	db   *sql.DB
	path string
}

// NewCatalog opens or creates the catalog database at dbPath. Parent
// directories are created if they do not exist.
func NewCatalog(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing catalog schema: %w", err)
	}

	return &Catalog{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		mod_time TIMESTAMP NOT NULL,
		chunk_count INTEGER NOT NULL,
		ingested_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertDocument inserts or replaces the record for a document.
func (c *Catalog) UpsertDocument(ctx context.Context, rec *DocumentRecord) error {
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (id, path, content_hash, size_bytes, mod_time, chunk_count, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			mod_time = excluded.mod_time,
			chunk_count = excluded.chunk_count,
			ingested_at = excluded.ingested_at`,
		rec.ID, rec.Path, rec.ContentHash, rec.SizeBytes, rec.ModTime, rec.ChunkCount, rec.IngestedAt,
	)
	return err
}

// GetDocument returns the record for id, or nil when the document was never
// ingested.
func (c *Catalog) GetDocument(ctx context.Context, id string) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := c.db.QueryRowContext(ctx,
		`SELECT id, path, content_hash, size_bytes, mod_time, chunk_count, ingested_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Path, &rec.ContentHash, &rec.SizeBytes, &rec.ModTime, &rec.ChunkCount, &rec.IngestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteDocument removes the record for id. Deleting an unknown id is not an
// error.
func (c *Catalog) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns all records ordered by document ID.
func (c *Catalog) ListDocuments(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, path, content_hash, size_bytes, mod_time, chunk_count, ingested_at
		 FROM documents ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DocumentRecord
	for rows.Next() {
		var rec DocumentRecord
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.ContentHash, &rec.SizeBytes, &rec.ModTime, &rec.ChunkCount, &rec.IngestedAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountDocuments returns the number of ingested documents.
func (c *Catalog) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountChunks returns the total number of passages across all documents.
func (c *Catalog) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(chunk_count), 0) FROM documents`).Scan(&count)
	return count, err
}

// GetMeta returns the value for key, or "" when unset.
func (c *Catalog) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetMeta stores a key/value pair.
func (c *Catalog) SetMeta(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// VerifyEmbeddingModel pins the embedding model and dimensions on first use
// and rejects a different model afterwards. Vectors from different models are
// not comparable, so switching models requires re-ingesting the corpus into a
// fresh catalog and collection.
func (c *Catalog) VerifyEmbeddingModel(ctx context.Context, model string, dimensions int) error {
	storedModel, err := c.GetMeta(ctx, metaEmbeddingModel)
	if err != nil {
		return err
	}
	storedDims, err := c.GetMeta(ctx, metaEmbeddingDimensions)
	if err != nil {
		return err
	}

	if storedModel == "" {
		if err := c.SetMeta(ctx, metaEmbeddingModel, model); err != nil {
			return err
		}
		return c.SetMeta(ctx, metaEmbeddingDimensions, strconv.Itoa(dimensions))
	}

	if storedModel != model {
		return fmt.Errorf("catalog was built with embedding model %q, config says %q; re-ingest the corpus or restore the old model",
			storedModel, model)
	}
	if storedDims != "" && storedDims != strconv.Itoa(dimensions) {
		return fmt.Errorf("catalog was built with %s-dimension embeddings, config says %d; re-ingest the corpus",
			storedDims, dimensions)
	}
	return nil
}

// SizeBytes returns the on-disk size of the catalog including WAL sidecars.
func (c *Catalog) SizeBytes() int64 {
	var total int64
	for _, p := range []string{c.path, c.path + "-wal", c.path + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
