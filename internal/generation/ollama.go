package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/retry"
)

// OllamaClient calls Ollama's /api/generate endpoint, non-streaming.
type OllamaClient struct {
	baseURL string
	model   string
	options ollamaOptions
	client  *http.Client
	policy  retry.Policy
}

type ollamaOptions struct {
	// Temperature is always sent; zero means deterministic sampling, not
	// "unset".
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// NewOllamaClient creates a client for an Ollama server. The configured
// timeout bounds each attempt; the policy bounds how many attempts are made.
func NewOllamaClient(cfg *config.GenerationConfig, policy retry.Policy) *OllamaClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
		options: ollamaOptions{
			Temperature: cfg.Temperature,
			NumCtx:      cfg.NumCtx,
			NumPredict:  cfg.NumPredict,
		},
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				ForceAttemptHTTP2: false,
			},
		},
		policy: policy,
	}
}

// Generate sends the prompt and returns the model output unmodified.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ErrUnavailable, err)
	}

	var answer string
	err = c.policy.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: calling ollama: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: ollama returned status %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Permanent(fmt.Errorf("%w: ollama returned status %d: %s",
				ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet))))
		}

		var out ollamaGenerateResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
		answer = out.Response
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

// Model returns the configured model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Close is a no-op.
func (c *OllamaClient) Close() error {
	return nil
}
