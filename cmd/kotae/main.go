// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chitose/kotae/internal/chunker"
	"github.com/chitose/kotae/internal/cli"
	"github.com/chitose/kotae/internal/config"
	"github.com/chitose/kotae/internal/embedding"
	"github.com/chitose/kotae/internal/generation"
	"github.com/chitose/kotae/internal/ingest"
	"github.com/chitose/kotae/internal/models"
	"github.com/chitose/kotae/internal/prompt"
	"github.com/chitose/kotae/internal/qa"
	"github.com/chitose/kotae/internal/retrieval"
	"github.com/chitose/kotae/internal/retry"
	"github.com/chitose/kotae/internal/server"
	"github.com/chitose/kotae/internal/storage"
	"github.com/chitose/kotae/internal/vectorindex"
	"github.com/chitose/kotae/internal/watcher"
	"github.com/chitose/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if neither
// exists, built-in defaults are used so kotae runs without any config file.
// Returns the config and the path that was actually loaded (empty for
// defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); statErr != nil {
			cfg, defErr := config.Default()
			if defErr != nil {
				return nil, "", defErr
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env next to the binary can hold QDRANT_URL, KOTAE_* overrides.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (stage transitions, watcher events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watch *watcher.Watcher
	if cfg.Corpus.WatchOrDefault() {
		pipe := components.Pipeline
		baseDir := cfg.Corpus.Dir
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watch = watcher.New(
			baseDir,
			cfg.Corpus.Extensions,
			func(path string) {
				if _, err := pipe.IngestFile(context.Background(), baseDir, path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if err := pipe.DeleteDocumentByPath(context.Background(), baseDir, path); err != nil {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watch.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watch.SyncExisting()
	}

	srv := server.NewServer(
		components.Engine,
		components.Pipeline,
		components.Catalog,
		components.Index,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watch != nil {
		watch.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces, so multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae ask what color is the sky
  kotae ask "what color is the sky"       # same as above
  kotae ask --output json "what color is the sky"
  kotae ask --server "" what color is the sky   # direct mode, no server needed
`)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// askArgsReorder moves any flags (and their values) that appear after the
// question to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "kotae ask question -output
// json" would otherwise leave -output unparsed.
func askArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func parseOutputFormat(name string) (cli.OutputFormat, error) {
	switch name {
	case "json":
		return cli.OutputJSON, nil
	case "text", "":
		return cli.OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", name)
	}
}

func runAsk() {
	askArgs := askArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = answer directly without a running server)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(askArgs)

	question := buildQuestion(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *serverURL != "" {
		resp, err := askViaHTTP(*serverURL, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct mode: build the pipeline in-process.
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	start := time.Now()
	answer, err := components.Engine.Ask(context.Background(), question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	resp := &models.AskResponse{
		Answer:      answer.Text,
		Citations:   answer.Citations,
		QueryTimeMS: time.Since(start).Milliseconds(),
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL, question string) (*models.AskResponse, error) {
	body, err := json.Marshal(&models.AskRequest{Q: question})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/ask", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	// Default to the configured corpus directory; a positional path ingests
	// a specific file or directory instead.
	path := cfg.Corpus.Dir
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var report *ingest.Report
	if info.IsDir() {
		report, err = components.Pipeline.IngestDirectory(ctx, path, cfg.Corpus.Extensions)
	} else {
		report, err = components.Pipeline.IngestFile(ctx, cfg.Corpus.Dir, path)
	}
	if err != nil {
		fmt.Printf("Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if len(report.Failures) > 0 {
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Pipeline.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Documents        int64          `json:"documents"`
	Chunks           int64          `json:"chunks"`
	IndexPoints      int64          `json:"index_points"`
	IndexAvailable   bool           `json:"index_available"`
	CatalogSizeBytes int64          `json:"catalog_size_bytes"`
	Config           map[string]any `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Catalog.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Catalog.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{
			Documents:        docCount,
			Chunks:           chunkCount,
			CatalogSizeBytes: components.Catalog.SizeBytes(),
			Config: map[string]any{
				"collection":           cfg.Index.Collection,
				"embedding_model":      cfg.Embedding.Model,
				"embedding_dimensions": cfg.Embedding.Dimensions,
				"generation_model":     cfg.Generation.Model,
				"top_k":                cfg.Retrieval.TopK,
				"min_score":            cfg.Retrieval.MinScore,
				"corpus_dir":           cfg.Corpus.Dir,
			},
		}
		countCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if points, err := components.Index.Count(countCtx); err == nil {
			status.IndexPoints = points
			status.IndexAvailable = true
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:           %d   # documents in the catalog\n", status.Documents)
		fmt.Printf("chunks:              %d   # passages produced from them\n", status.Chunks)
		fmt.Printf("index_available:     %t\n", status.IndexAvailable)
		if status.IndexAvailable {
			fmt.Printf("index_points:        %d   # vectors in the index\n", status.IndexPoints)
		}
		fmt.Printf("catalog_size_bytes:  %d\n", status.CatalogSizeBytes)
		if len(status.Config) > 0 {
			fmt.Println()
			fmt.Println("# configuration")
			for _, key := range []string{"collection", "embedding_model", "embedding_dimensions", "generation_model", "top_k", "min_score", "corpus_dir"} {
				if v, ok := status.Config[key]; ok {
					fmt.Printf("%-21s%v\n", key+":", v)
				}
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Catalog   *storage.Catalog
	Embedder  embedding.Embedder
	Index     vectorindex.Index
	Pipeline  *ingest.Pipeline
	Retriever *retrieval.Retriever
	Assembler *prompt.Assembler
	Generator generation.Client
	Engine    *qa.Engine
}

func (c *Components) Close() {
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	catalog, err := storage.NewCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing catalog: %w", err)
	}

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		_ = catalog.Close()
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The probe is fatal on purpose: a model producing the wrong vector size
	// would silently poison the index.
	if err := embedding.VerifyDimensions(startCtx, embedder); err != nil {
		_ = embedder.Close()
		_ = catalog.Close()
		return nil, fmt.Errorf("verifying embedding dimensions: %w", err)
	}

	policy := retry.NewPolicy(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.BaseBackoffMS)*time.Millisecond,
		time.Duration(cfg.Retry.MaxBackoffMS)*time.Millisecond,
	)

	index, err := vectorindex.New(&cfg.Index, policy)
	if err != nil {
		_ = embedder.Close()
		_ = catalog.Close()
		return nil, fmt.Errorf("initializing vector index: %w", err)
	}
	if err := index.EnsureReady(startCtx, embedder.Dimensions()); err != nil {
		_ = index.Close()
		_ = embedder.Close()
		_ = catalog.Close()
		return nil, fmt.Errorf("preparing vector index: %w", err)
	}

	if err := catalog.VerifyEmbeddingModel(startCtx, cfg.Embedding.Model, embedder.Dimensions()); err != nil {
		_ = index.Close()
		_ = embedder.Close()
		_ = catalog.Close()
		return nil, err
	}

	logger.Info("vector index ready",
		zap.String("provider", cfg.Index.Provider),
		zap.String("collection", cfg.Index.Collection),
		zap.Int("dimensions", embedder.Dimensions()),
	)

	pipeOpts := []ingest.Option{}
	retrOpts := []retrieval.Option{}
	qaOpts := []qa.Option{}
	if debug {
		pipeOpts = append(pipeOpts, ingest.WithLogger(logger))
		retrOpts = append(retrOpts, retrieval.WithLogger(logger))
		qaOpts = append(qaOpts, qa.WithLogger(logger))
	}

	pipeline := ingest.NewPipeline(
		chunker.New(cfg.Chunking.MaxChars, cfg.Chunking.OverlapChars),
		embedder, index, catalog,
		cfg.Ingest.Concurrency,
		pipeOpts...,
	)
	retriever := retrieval.NewRetriever(embedder, index, retrOpts...)
	assembler := prompt.NewAssembler(cfg.Prompt.MaxContextChars)

	generator, err := generation.New(&cfg.Generation, policy)
	if err != nil {
		_ = index.Close()
		_ = embedder.Close()
		_ = catalog.Close()
		return nil, fmt.Errorf("initializing generation client: %w", err)
	}

	engine := qa.NewEngine(retriever, assembler, generator, &cfg.Retrieval, qaOpts...)

	return &Components{
		Catalog:   catalog,
		Embedder:  embedder,
		Index:     index,
		Pipeline:  pipeline,
		Retriever: retriever,
		Assembler: assembler,
		Generator: generator,
		Engine:    engine,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - local question answering over your documents

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ask [flags] <question>    Ask a question
  kotae ingest [flags] [path]     Ingest the corpus directory (or a specific path)
  kotae delete [flags] <id>       Delete a document from the index
  kotae status [flags]            Show corpus/index status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging (stage transitions, watcher events, etc.)

Ask Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to answer directly without a running server.
  --output string    Output format: text or json (default: text)

Ingest Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read directly.
  --output string    Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask what color is the sky
  kotae ask --output json "what color is the sky"
  kotae ingest
  kotae ingest ./notes
  kotae delete guides/setup.md
  kotae status --output json`)
}
