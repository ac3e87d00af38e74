package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/retry"
)

var errCollectionNotFound = errors.New("collection not found")

// QdrantIndex talks to a Qdrant server over its REST API. Point IDs are the
// deterministic passage UUIDs, so upserting the same passage twice overwrites
// one point. Transient failures are retried within the configured policy.
type QdrantIndex struct {
	baseURL    string
	collection string
	apiKey     string
	client     *http.Client
	policy     retry.Policy
}

// NewQdrantIndex creates a Qdrant-backed index for one collection.
func NewQdrantIndex(baseURL, collection, apiKey string, timeout time.Duration, policy retry.Policy) *QdrantIndex {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				ForceAttemptHTTP2: false,
			},
		},
		policy: policy,
	}
}

type qdrantPayload struct {
	SourceDoc  string `json:"source_document"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

type qdrantCollectionInfo struct {
	Result struct {
		PointsCount int64 `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureReady checks the collection exists with the expected dimensions and
// cosine distance, creating it when missing. A dimension conflict is returned
// as a plain error: the operator must fix the config or re-create the
// collection, retrying will not help.
func (q *QdrantIndex) EnsureReady(ctx context.Context, dimensions int) error {
	var info qdrantCollectionInfo
	err := q.policy.Do(ctx, func() error {
		return q.doJSON(ctx, http.MethodGet, q.collectionPath(""), nil, &info)
	})
	if err == nil {
		if got := info.Result.Config.Params.Vectors.Size; got != dimensions {
			return fmt.Errorf("collection %q holds %d-dimension vectors, embedder produces %d; re-create the collection or fix embedding.dimensions",
				q.collection, got, dimensions)
		}
		return nil
	}
	if !errors.Is(err, errCollectionNotFound) {
		return err
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	return q.policy.Do(ctx, func() error {
		return q.doJSON(ctx, http.MethodPut, q.collectionPath(""), body, nil)
	})
}

// Upsert writes passages as points. Existing points with the same IDs are
// overwritten. wait=true makes the write visible to the next search.
func (q *QdrantIndex) Upsert(ctx context.Context, passages []*models.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(passages))
	for i, p := range passages {
		points[i] = qdrantPoint{
			ID:     p.ID,
			Vector: p.Embedding,
			Payload: qdrantPayload{
				SourceDoc:  p.SourceDoc,
				ChunkIndex: p.ChunkIndex,
				Text:       p.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return q.policy.Do(ctx, func() error {
		return q.doJSON(ctx, http.MethodPut, q.collectionPath("/points?wait=true"), body, nil)
	})
}

// Search returns up to k passages nearest to the query vector, best first.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]*models.ScoredPassage, error) {
	if k <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var out struct {
		Result []struct {
			ID      any           `json:"id"`
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	err := q.policy.Do(ctx, func() error {
		return q.doJSON(ctx, http.MethodPost, q.collectionPath("/points/search"), body, &out)
	})
	if err != nil {
		return nil, err
	}

	results := make([]*models.ScoredPassage, 0, len(out.Result))
	for _, hit := range out.Result {
		results = append(results, &models.ScoredPassage{
			Passage: &models.Passage{
				ID:         pointIDString(hit.ID),
				Text:       hit.Payload.Text,
				SourceDoc:  hit.Payload.SourceDoc,
				ChunkIndex: hit.Payload.ChunkIndex,
			},
			Score: hit.Score,
		})
	}
	return results, nil
}

// DeleteDocument removes all points whose payload names the source document.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, sourceDoc string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "source_document", "match": map[string]any{"value": sourceDoc}},
			},
		},
	}
	return q.policy.Do(ctx, func() error {
		return q.doJSON(ctx, http.MethodPost, q.collectionPath("/points/delete?wait=true"), body, nil)
	})
}

// Count returns the number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int64, error) {
	var info qdrantCollectionInfo
	err := q.policy.Do(ctx, func() error {
		return q.doJSON(ctx, http.MethodGet, q.collectionPath(""), nil, &info)
	})
	if err != nil {
		return 0, err
	}
	return info.Result.PointsCount, nil
}

// Close is a no-op; connections are owned by the HTTP client.
func (q *QdrantIndex) Close() error {
	return nil
}

func (q *QdrantIndex) collectionPath(suffix string) string {
	return q.baseURL + "/collections/" + url.PathEscape(q.collection) + suffix
}

// doJSON performs one request and classifies the outcome: transport errors
// and 5xx responses are retryable ErrUnavailable, 404 maps to
// errCollectionNotFound, and other 4xx responses are permanent.
func (q *QdrantIndex) doJSON(ctx context.Context, method, rawurl string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("encoding qdrant request: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, reader)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(errCollectionNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: qdrant returned status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(fmt.Errorf("qdrant rejected request: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// pointIDString renders a Qdrant point ID. This service writes UUID strings,
// but numeric IDs from pre-existing collections are rendered too.
func pointIDString(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
