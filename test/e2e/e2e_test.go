package e2e

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/watcher"
)

const (
	e2eTopK    = 5
	e2eTimeout = 5 * time.Second
)

func newStack(t *testing.T) (*rag.Service, *indexer.Service) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Backend = store.BackendMemory
	cfg.Storage.SnapshotPath = filepath.Join(dir, "vector_store.json")
	cfg.Embedding.Dimensions = 64
	cfg.Ingest.ChunkSize = 60
	cfg.Ingest.ChunkOverlap = 10

	ctx := context.Background()
	embedder := embedding.NewProvider(ctx, &cfg.Embedding, zap.NewNop())
	st, err := store.New(&cfg.Storage, &cfg.Retrieval, embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		st.Close()
		embedder.Close()
	})
	generator := generation.NewProvider(ctx, &cfg.Generation, zap.NewNop())
	idx := indexer.NewService(st, nil, &cfg.Ingest)
	return rag.NewService(st, embedder, generator, &cfg.Retrieval, &cfg.Demo), idx
}

func startWatcher(t *testing.T, ctx context.Context, dir string, idx *indexer.Service) {
	t.Helper()
	w := watcher.NewWatcher([]string{dir}, []string{".txt", ".docx"}, true,
		func(path string) { _, _ = idx.IngestFile(context.Background(), path) },
		func(path string) { _, _ = idx.RemoveFile(context.Background(), path) },
		watcher.WithDebounce(50*time.Millisecond))
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	w.SyncExistingFiles()
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(e2eTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func documentCount(ctx context.Context, idx *indexer.Service) int {
	docs, err := idx.Documents(ctx)
	if err != nil {
		return -1
	}
	return len(docs)
}

func TestE2E_WatchedDirectoryAnswersQueries(t *testing.T) {
	watchDir := t.TempDir()
	for _, doc := range Corpus() {
		if err := os.WriteFile(filepath.Join(watchDir, doc.Filename), doc.FileBytes(), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	ragSvc, idx := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWatcher(t, ctx, watchDir, idx)

	want := len(Corpus())
	waitFor(t, func() bool { return documentCount(ctx, idx) == want }, "corpus ingestion")

	for _, tc := range QueryCases() {
		t.Run(tc.Description, func(t *testing.T) {
			resp, err := ragSvc.Query(ctx, &models.QueryRequest{Query: tc.Query, TopK: e2eTopK})
			if err != nil {
				t.Fatalf("query %q: %v", tc.Query, err)
			}
			if resp.Answer == "" {
				t.Error("empty answer")
			}
			var names []string
			for _, src := range resp.Sources {
				names = append(names, src.DocumentName)
			}
			if !containsString(names, tc.WantSource) {
				t.Errorf("query %q: want %s among citations, got %v", tc.Query, tc.WantSource, names)
			}
		})
	}

	// Deleting a watched file drops its document from the knowledge base.
	if err := os.Remove(filepath.Join(watchDir, "espresso.txt")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return documentCount(ctx, idx) == want-1 }, "document removal after file delete")
}

func TestE2E_RewrittenFileReplacesDocument(t *testing.T) {
	watchDir := t.TempDir()
	_, idx := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWatcher(t, ctx, watchDir, idx)

	path := filepath.Join(watchDir, "notes.txt")
	if err := os.WriteFile(path, []byte("the first draft speaks only of penguins and pack ice"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return documentCount(ctx, idx) == 1 }, "initial ingestion")

	docs, err := idx.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	firstID, firstChunks := docs[0].ID, docs[0].ChunkCount

	// Rewrite with much more text: same document ID, more chunks, still one
	// document.
	revised := strings.Repeat("the revised draft covers glaciers, icebergs, moraines, and the katabatic winds that pour off the plateau. ", 12)
	if err := os.WriteFile(path, []byte(revised), 0o600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		current, err := idx.Documents(ctx)
		return err == nil && len(current) == 1 && current[0].ChunkCount > firstChunks
	}, "rewritten file replacing its document")

	docs, err = idx.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if docs[0].ID != firstID {
		t.Errorf("document ID changed on rewrite: %s -> %s", firstID, docs[0].ID)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
