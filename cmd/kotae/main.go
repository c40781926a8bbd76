// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

const defaultServerURL = "http://localhost:8080"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A .env in the working directory supplies OPENAI_API_KEY during
	// development; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "ingest":
		runIngest()
	case "documents":
		runDocuments()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "init":
		runInit()
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
	debug := fs.Bool("debug", false, "enable debug logging (file events, ingestion, etc.)")
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

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	idx := components.Indexer
	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				if _, err := idx.IngestFile(context.Background(), path); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			func(path string) {
				if _, err := idx.RemoveFile(context.Background(), path); err != nil {
					logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
				}
			},
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	srv := server.NewServer(components.RAG, components.Indexer, cfg, version, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printQueryUsage prints query subcommand usage.
func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: kotae query [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces, so multi-word questions work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kotae query how does chunk overlap work
  kotae query "how does chunk overlap work"   # same as above
  kotae query --top-k 10 backup retention policy
  kotae query --output json what is kotae     # raw answer stream for other apps
`)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting (e.g. "backup policy" vs backup policy).
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves any flags (and their values) that appear after the
// question to the front of the slice so that flag.Parse() sees them. Go's
// flag package stops at the first non-flag argument, so
// "kotae query backup policy -top-k 10" would otherwise leave -top-k unparsed.
func reorderArgs(args []string) []string {
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

// parseOutputFormat maps the -output flag value to a cli format.
func parseOutputFormat(s string) (cli.OutputFormat, error) {
	switch s {
	case "text":
		return cli.OutputText, nil
	case "json":
		return cli.OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func runQuery() {
	queryArgs := reorderArgs(os.Args[2:])

	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used without a server)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer in-process without a running server)")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text (streamed answer) or json (raw frames)")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgs)

	if fs.NArg() < 1 {
		printQueryUsage(fs)
		os.Exit(1)
	}
	question := buildQuery(fs.Args())
	if question == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.QueryRequest{Query: question, TopK: *topK}

	if *serverURL != "" {
		// Stream through the API when the server is running (the persistent
		// store does not tolerate a second process opening it).
		body, err := queryViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		defer body.Close()
		if err := cli.WriteQueryStream(os.Stdout, body, format); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct store access (when server is not running). Answers arrive in one
	// piece instead of streaming.
	_, components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	response, err := components.RAG.Query(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fmt.Println(response.Answer)
	if len(response.Sources) > 0 {
		fmt.Println("\nSources:")
		cli.WriteCitations(os.Stdout, response.Sources)
	}
	fmt.Printf("\n(%.2fs, model %s)\n", response.ResponseTime, response.ModelUsed)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used without a server)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = ingest in-process without a running server)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file>...")
		os.Exit(1)
	}
	paths := fs.Args()

	if *serverURL != "" {
		result, err := uploadViaHTTP(*serverURL, paths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(result.Message)
		for _, doc := range result.Documents {
			fmt.Printf("  %s  %s (%d chunks)\n", doc.ID, doc.Filename, doc.ChunkCount)
		}
		return
	}

	_, components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	failed := 0
	for _, path := range paths {
		doc, err := components.Indexer.IngestFile(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed for %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("  %s  %s (%d chunks)\n", doc.ID, doc.Filename, doc.ChunkCount)
	}
	if failed == len(paths) {
		os.Exit(1)
	}
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used without a server)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var docs []*models.DocumentInfo
	if *serverURL != "" {
		docs, err = documentsViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, components, logger := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		docs, err = components.Indexer.Documents(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
	}

	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used without a server)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = delete from the store directly)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	if *serverURL != "" {
		if err := deleteViaHTTP(*serverURL, docID); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Document deleted: %s\n", docID)
		return
	}

	_, components, logger := openComponents(*configPath)
	defer logger.Sync()
	defer components.Close()

	found, err := components.Indexer.DeleteDocument(context.Background(), docID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Document not found: %s\n", docID)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (used without a server)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = inspect the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var report *models.HealthReport
	if *serverURL != "" {
		report, err = healthViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		_, components, logger := openComponents(*configPath)
		defer logger.Sync()
		defer components.Close()
		report = components.RAG.Health(context.Background())
	}

	if err := cli.WriteHealth(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(os.Args[2:])

	if !*force {
		if _, err := os.Stat(*configPath); err == nil {
			fmt.Fprintf(os.Stderr, "Config already exists: %s (use --force to overwrite)\n", *configPath)
			os.Exit(1)
		}
	}
	if err := config.Save(*configPath, config.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", *configPath)
}

// uploadResponse is the success body of POST /api/upload.
type uploadResponse struct {
	Message   string                 `json:"message"`
	Documents []*models.DocumentInfo `json:"documents"`
}

func uploadViaHTTP(serverURL string, paths []string) (*uploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		part, err := mw.CreateFormFile("files", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// queryViaHTTP posts the query and hands back the NDJSON stream. The caller
// owns the returned body.
func queryViaHTTP(serverURL string, query *models.QueryRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}
	return resp.Body, nil
}

func documentsViaHTTP(serverURL string) ([]*models.DocumentInfo, error) {
	resp, err := http.Get(serverURL + "/api/documents")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out struct {
		Documents  []*models.DocumentInfo `json:"documents"`
		TotalCount int                    `json:"total_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Documents, nil
}

func deleteViaHTTP(serverURL, docID string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/documents/"+url.PathEscape(docID), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func healthViaHTTP(serverURL string) (*models.HealthReport, error) {
	resp, err := http.Get(serverURL + "/api/health")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var report models.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

// apiError turns a non-200 response into an error, preferring the server's
// {"error": ...} message over the raw body.
func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &out); err == nil && out.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// Components holds initialized services.
type Components struct {
	Store     store.Store
	Embedder  *embedding.Provider
	Generator *generation.Provider
	Indexer   *indexer.Service
	RAG       *rag.Service
}

func (c *Components) Close() {
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents brings up the service stack: embedding provider first
// (the store embeds through it), then the store, the generation provider, and
// the services on top. The provider probes run against ctx.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder := embedding.NewProvider(ctx, &cfg.Embedding, logger)

	st, err := store.New(&cfg.Storage, &cfg.Retrieval, embedder, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	generator := generation.NewProvider(ctx, &cfg.Generation, logger)

	idx := indexer.NewService(st, nil, &cfg.Ingest, indexer.WithLogger(logger))
	ragSvc := rag.NewService(st, embedder, generator, &cfg.Retrieval, &cfg.Demo,
		rag.WithLogger(logger),
		rag.WithStoragePaths(cfg.Storage.ChromaPath, cfg.Storage.SnapshotPath, cfg.Storage.CatalogPath),
	)

	return &Components{
		Store:     st,
		Embedder:  embedder,
		Generator: generator,
		Indexer:   idx,
		RAG:       ragSvc,
	}, nil
}

// openComponents loads config and brings up the component stack for commands
// that run without a server. Exits the process on failure.
func openComponents(configPath string) (*config.Config, *Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return cfg, components, logger
}

func printUsage() {
	fmt.Println(`kotae - Ask questions, get cited answers from your own documents

Usage:
  kotae server [flags]              Start the HTTP server
  kotae query [flags] <question>    Ask a question against the knowledge base
  kotae ingest [flags] <file>...    Add documents to the knowledge base
  kotae documents [flags]           List ingested documents
  kotae delete [flags] <id>         Delete a document
  kotae status [flags]              Show component health
  kotae init [flags]                Write a starter config file
  kotae version                     Show version
  kotae help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging (file events, ingestion, etc.)

Query Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to answer in-process when no server is running.
  --config string    Config file path (used without a server)
  --top-k int        Number of chunks to retrieve (0 = server default)
  --output string    Output format: text or json (default: text). json prints the raw answer stream.

Ingest Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") to ingest in-process.
  --config string    Config file path (used without a server)

Documents / Status Flags:
  --server string    Server URL; empty for direct store access
  --config string    Config file path (used without a server)
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string    Where to write the config file (default: config.yaml)
  --force            Overwrite an existing file

Examples:
  kotae init
  kotae server
  kotae ingest handbook.pdf notes.txt
  kotae query how long are backups retained
  kotae query --output json "what changed in v2"
  kotae documents
  kotae status
  kotae delete 5f0c9a3e-2d1b-4c8f-9a67-0d1e2f3a4b5c`)
}
