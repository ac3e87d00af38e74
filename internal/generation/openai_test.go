package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerate(t *testing.T) {
	var got chatCompletionRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Blue, mostly."}},
			},
		})
	}))
	defer srv.Close()

	cfg := ollamaConfig(srv.URL)
	cfg.Provider = "openai"
	cfg.APIKey = "sk-test"
	c := NewOpenAIClient(cfg, testGenPolicy())

	answer, err := c.Generate(context.Background(), "What color is the sky?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "Blue, mostly." {
		t.Errorf("answer = %q", answer)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "What color is the sky?" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	cfg := ollamaConfig(srv.URL)
	cfg.Provider = "openai"
	c := NewOpenAIClient(cfg, testGenPolicy())
	_, err := c.Generate(context.Background(), "q")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}
