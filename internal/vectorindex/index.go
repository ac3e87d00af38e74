// Package vectorindex stores passage embeddings and answers nearest-neighbor
// queries. The production backend is a Qdrant server; an in-memory index
// serves tests and small corpora.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/retry"
)

// ErrUnavailable marks errors talking to the index backend. Transient by
// nature: callers retry within the configured policy and report the index as
// unreachable, never the raw transport detail.
var ErrUnavailable = errors.New("vector index unavailable")

// Index stores passage vectors and finds the nearest ones to a query vector.
// Upsert overwrites points that already exist under the same passage ID, so
// re-ingesting a document is idempotent.
type Index interface {
	// EnsureReady verifies the backing collection exists with the expected
	// dimensions, creating it if missing. A dimension conflict is fatal.
	EnsureReady(ctx context.Context, dimensions int) error
	Upsert(ctx context.Context, passages []*models.Passage) error
	Search(ctx context.Context, vector []float32, k int) ([]*models.ScoredPassage, error)
	// DeleteDocument removes every passage ingested from the named source
	// document.
	DeleteDocument(ctx context.Context, sourceDoc string) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// New creates the index selected by cfg.Provider.
func New(cfg *config.IndexConfig, policy retry.Policy) (Index, error) {
	switch cfg.Provider {
	case "qdrant", "":
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		return NewQdrantIndex(cfg.URL, cfg.Collection, cfg.APIKey, timeout, policy), nil
	case "memory":
		return NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown index provider %q", cfg.Provider)
	}
}
