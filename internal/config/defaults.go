package config

// ApplyDefaults sets default values for any zero values in cfg. The defaults
// target a single-host deployment with Qdrant and Ollama on localhost.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Corpus.Dir == "" {
		cfg.Corpus.Dir = "./corpus"
	}
	if cfg.Corpus.Extensions == nil {
		cfg.Corpus.Extensions = []string{".txt", ".md"}
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "./kotae.db"
	}
	if cfg.Index.Provider == "" {
		cfg.Index.Provider = "qdrant"
	}
	if cfg.Index.URL == "" {
		cfg.Index.URL = "http://localhost:6333"
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = "docs"
	}
	if cfg.Index.TimeoutSeconds == 0 {
		cfg.Index.TimeoutSeconds = 15
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 4096
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 512
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "ollama"
	}
	if cfg.Generation.URL == "" {
		cfg.Generation.URL = "http://localhost:11434"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "mistral:instruct"
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}
	if cfg.Generation.NumCtx == 0 {
		cfg.Generation.NumCtx = 4096
	}
	if cfg.Generation.NumPredict == 0 {
		cfg.Generation.NumPredict = 256
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.3
	}
	if cfg.Chunking.MaxChars == 0 {
		cfg.Chunking.MaxChars = 1200
	}
	if cfg.Chunking.OverlapChars == 0 {
		cfg.Chunking.OverlapChars = 200
	}
	if cfg.Prompt.MaxContextChars == 0 {
		cfg.Prompt.MaxContextChars = 6000
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 2
	}
	if cfg.Retry.BaseBackoffMS == 0 {
		cfg.Retry.BaseBackoffMS = 500
	}
	if cfg.Retry.MaxBackoffMS == 0 {
		cfg.Retry.MaxBackoffMS = 5000
	}
}
