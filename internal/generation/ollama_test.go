package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/retry"
)

func testGenPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func ollamaConfig(url string) *config.GenerationConfig {
	return &config.GenerationConfig{
		Provider:       "ollama",
		URL:            url,
		Model:          "mistral:instruct",
		TimeoutSeconds: 5,
		Temperature:    0,
		NumCtx:         4096,
		NumPredict:     256,
	}
}

func TestOllamaGenerate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s, want /api/generate", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "\n The sky is blue. "})
	}))
	defer srv.Close()

	c := NewOllamaClient(ollamaConfig(srv.URL), testGenPolicy())
	answer, err := c.Generate(context.Background(), "Why is the sky blue?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Output comes back exactly as the model produced it.
	if answer != "\n The sky is blue. " {
		t.Errorf("answer = %q", answer)
	}
	if got.Model != "mistral:instruct" || got.Prompt != "Why is the sky blue?" {
		t.Errorf("request = %+v", got)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
	if got.Options.NumCtx != 4096 || got.Options.NumPredict != 256 {
		t.Errorf("options = %+v", got.Options)
	}
}

func TestOllamaGenerateSendsZeroTemperature(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "ok"})
	}))
	defer srv.Close()

	c := NewOllamaClient(ollamaConfig(srv.URL), testGenPolicy())
	if _, err := c.Generate(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	options, ok := raw["options"].(map[string]any)
	if !ok {
		t.Fatalf("options missing: %v", raw)
	}
	if _, present := options["temperature"]; !present {
		t.Error("temperature 0 must be sent explicitly, not omitted")
	}
}

func TestOllamaRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "recovered"})
	}))
	defer srv.Close()

	c := NewOllamaClient(ollamaConfig(srv.URL), testGenPolicy())
	answer, err := c.Generate(context.Background(), "q")
	if err != nil {
		t.Fatalf("Generate should succeed on the retry: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q", answer)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestOllamaDoesNotRetryMissingModel(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(ollamaConfig(srv.URL), testGenPolicy())
	_, err := c.Generate(context.Background(), "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 404)", calls.Load())
	}
}

func TestOllamaTimeoutGivesUpBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := ollamaConfig(srv.URL)
	cfg.TimeoutSeconds = 0 // constructor clamps; override the client below
	c := NewOllamaClient(cfg, testGenPolicy())
	c.client.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Generate(context.Background(), "q")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry after timeout)", calls.Load())
	}
	if elapsed > 2*time.Second {
		t.Errorf("gave up after %v, should be bounded", elapsed)
	}
}

func TestOllamaUnreachable(t *testing.T) {
	cfg := ollamaConfig("http://127.0.0.1:1")
	cfg.TimeoutSeconds = 1
	c := NewOllamaClient(cfg, testGenPolicy())
	_, err := c.Generate(context.Background(), "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(&config.GenerationConfig{Provider: "carrier-pigeon"}, testGenPolicy())
	if err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}
