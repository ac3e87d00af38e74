// Package config provides configuration loading and structs for the Kotae service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Index      IndexConfig      `yaml:"index"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retry      RetryConfig      `yaml:"retry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CorpusConfig holds the corpus location and which files are picked up from it.
type CorpusConfig struct {
	Dir        string   `yaml:"dir"`
	Extensions []string `yaml:"extensions"`
	Watch      *bool    `yaml:"watch"`
}

// WatchOrDefault returns whether to watch the corpus directory; defaults to true when unset.
func (c *CorpusConfig) WatchOrDefault() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// CatalogConfig holds the ingest catalog database path.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig holds vector index service settings.
type IndexConfig struct {
	Provider       string `yaml:"provider"` // "qdrant" or "memory"
	URL            string `yaml:"url"`
	Collection     string `yaml:"collection"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EmbeddingConfig holds embedding backend settings. ModelPath and MaxTokens
// apply to the onnx provider only.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama", "openai", "onnx", or "mock"
	URL            string `yaml:"url"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	Dimensions     int    `yaml:"dimensions"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheSize      int    `yaml:"cache_size"`
	ModelPath      string `yaml:"model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
}

// GenerationConfig holds text generation service settings.
type GenerationConfig struct {
	Provider       string  `yaml:"provider"` // "ollama" or "openai"
	URL            string  `yaml:"url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
	NumCtx         int     `yaml:"num_ctx"`
	NumPredict     int     `yaml:"num_predict"`
}

// RetrievalConfig holds how many passages are fetched per query and the
// relevance cutoff below which hits are discarded. A min_score of zero takes
// the default; set a negative value to keep every hit.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
}

// ChunkingConfig holds passage size limits in characters.
type ChunkingConfig struct {
	MaxChars     int `yaml:"max_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// PromptConfig holds the context budget for prompt assembly.
type PromptConfig struct {
	MaxContextChars int `yaml:"max_context_chars"`
}

// IngestConfig holds ingestion parallelism settings.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// RetryConfig holds the bounded retry policy for the vector index and
// generation service adapters.
type RetryConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	BaseBackoffMS int `yaml:"base_backoff_ms"`
	MaxBackoffMS  int `yaml:"max_backoff_ms"`
}

// Load reads and parses the config file at path, applies defaults and
// environment overrides, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	configDir := filepath.Dir(path)
	cfg.Corpus.Dir = expandPath(cfg.Corpus.Dir, configDir)
	cfg.Catalog.Path = expandPath(cfg.Catalog.Path, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config built purely from defaults and environment
// overrides, with paths expanded against the current directory. Used when no
// config file exists.
func Default() (*Config, error) {
	var cfg Config
	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg.Corpus.Dir = expandPath(cfg.Corpus.Dir, cwd)
	cfg.Catalog.Path = expandPath(cfg.Catalog.Path, cwd)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, cwd)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate enforces cross-field constraints that would otherwise surface as
// confusing behavior deep in the pipeline.
func (c *Config) Validate() error {
	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Chunking.OverlapChars < 0 {
		return fmt.Errorf("chunking.overlap_chars cannot be negative, got %d", c.Chunking.OverlapChars)
	}
	if c.Chunking.OverlapChars >= c.Chunking.MaxChars {
		return fmt.Errorf("chunking.overlap_chars (%d) must be smaller than chunking.max_chars (%d)",
			c.Chunking.OverlapChars, c.Chunking.MaxChars)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Prompt.MaxContextChars <= 0 {
		return fmt.Errorf("prompt.max_context_chars must be positive, got %d", c.Prompt.MaxContextChars)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// applyEnvOverrides lets a handful of environment variables override file
// values, so deployments can point at different services without editing the
// config file. OLLAMA_URL covers both embedding and generation when they use
// the ollama provider; OPENAI_API_KEY covers both openai providers.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KOTAE_CORPUS_DIR"); v != "" {
		cfg.Corpus.Dir = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		cfg.Index.URL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		cfg.Index.Collection = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.Index.APIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		if cfg.Embedding.Provider == "ollama" {
			cfg.Embedding.URL = v
		}
		if cfg.Generation.Provider == "ollama" {
			cfg.Generation.URL = v
		}
	}
	if v := os.Getenv("KOTAE_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("KOTAE_GENERATION_MODEL"); v != "" {
		cfg.Generation.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Generation.APIKey == "" {
			cfg.Generation.APIKey = v
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to baseDir;
// other relative paths are relative to the home directory.
func expandPath(path string, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(baseDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
