package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint. Works
// against llama.cpp, vLLM, LocalAI and the hosted API alike.
type OpenAIEmbedder struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	client     *http.Client
	cache      *Cache
}

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewOpenAIEmbedder(baseURL, model, apiKey string, dimensions int, timeout time.Duration, cacheSize int) *OpenAIEmbedder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		dimensions: dimensions,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				ForceAttemptHTTP2: false,
			},
		},
		cache: NewCache(cacheSize),
	}
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds all texts in one API call. Empty texts are filled with
// zero vectors locally since the API rejects empty input strings.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	var input []string
	var positions []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			embeddings[i] = make([]float32, e.dimensions)
			continue
		}
		if cached, ok := e.cache.Get(text); ok {
			embeddings[i] = cached
			continue
		}
		input = append(input, text)
		positions = append(positions, i)
	}
	if len(input) == 0 {
		return embeddings, nil
	}

	body, err := json.Marshal(openaiEmbedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calling embeddings api: %v", ErrFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: embeddings api returned status %d: %s", ErrFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrFailed, err)
	}
	if len(out.Data) != len(input) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrFailed, len(input), len(out.Data))
	}

	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(input) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrFailed, item.Index)
		}
		if len(item.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: model %s produced %d dimensions, configured for %d",
				ErrFailed, e.model, len(item.Embedding), e.dimensions)
		}
		pos := positions[item.Index]
		embeddings[pos] = item.Embedding
		e.cache.Set(input[item.Index], item.Embedding)
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: no embedding returned for input %d", ErrFailed, i)
		}
	}
	return embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
