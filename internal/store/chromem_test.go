package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestChromemStore(t *testing.T) *ChromemStore {
	t.Helper()
	dir := t.TempDir()
	st, err := NewChromemStore(filepath.Join(dir, "chroma"), filepath.Join(dir, "catalog.db"),
		testRetrieval(), newHashProvider())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestChromemStore_AddAndSearch(t *testing.T) {
	st := newTestChromemStore(t)
	ctx := context.Background()

	if err := st.AddChunks(ctx, docChunks("doc-a", "guide.txt",
		"Chunk overlap keeps sentence context intact across boundaries.",
		"Snapshots are rewritten after every mutation.")); err != nil {
		t.Fatal(err)
	}
	if err := st.AddChunks(ctx, docChunks("doc-b", "notes.txt",
		"Backups are retained for ninety days.")); err != nil {
		t.Fatal(err)
	}
	if st.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", st.Size())
	}
	if st.Backend() != BackendChromem {
		t.Errorf("Backend() = %q, want %q", st.Backend(), BackendChromem)
	}

	results, err := st.SimilaritySearch(ctx, "Chunk overlap keeps sentence context intact across boundaries.", 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected results for an exact-content query")
	}
	if results[0].Content != "Chunk overlap keeps sentence context intact across boundaries." {
		t.Errorf("top hit = %q", results[0].Content)
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical text should score ~1.0, got %f", results[0].Score)
	}
	if results[0].Metadata["document_id"] != "doc-a" {
		t.Errorf("top hit document_id = %q", results[0].Metadata["document_id"])
	}
}

func TestChromemStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	chromaPath := filepath.Join(dir, "chroma")
	catalogPath := filepath.Join(dir, "catalog.db")
	retrieval := testRetrieval()
	provider := newHashProvider()
	ctx := context.Background()

	st1, err := NewChromemStore(chromaPath, catalogPath, retrieval, provider)
	if err != nil {
		t.Fatal(err)
	}
	if err := st1.AddChunks(ctx, docChunks("doc-a", "guide.txt", "chunk one", "chunk two")); err != nil {
		t.Fatal(err)
	}
	if err := st1.Close(); err != nil {
		t.Fatal(err)
	}

	st2, err := NewChromemStore(chromaPath, catalogPath, retrieval, provider)
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()

	if st2.Size() != 2 {
		t.Fatalf("Size() after reopen = %d, want 2", st2.Size())
	}
	docs, err := st2.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-a" || docs[0].ChunkCount != 2 {
		t.Errorf("Documents() after reopen = %+v", docs)
	}
	results, err := st2.SimilaritySearch(ctx, "chunk one", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Content != "chunk one" {
		t.Errorf("search after reopen: %+v", results)
	}
}

func TestChromemStore_DeleteDocument(t *testing.T) {
	st := newTestChromemStore(t)
	ctx := context.Background()

	if err := st.AddChunks(ctx, docChunks("doc-a", "guide.txt", "first chunk", "second chunk")); err != nil {
		t.Fatal(err)
	}
	if err := st.AddChunks(ctx, docChunks("doc-b", "notes.txt", "third chunk")); err != nil {
		t.Fatal(err)
	}

	found, err := st.DeleteDocument(ctx, "doc-a")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("delete of an existing document reported found=false")
	}
	if st.Size() != 1 {
		t.Errorf("Size() after delete = %d, want 1", st.Size())
	}

	found, err = st.DeleteDocument(ctx, "doc-a")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("second delete reported found=true")
	}

	docs, err := st.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "doc-b" {
		t.Errorf("Documents() after delete = %+v", docs)
	}
}

func TestChromemStore_FilterRestrictsCandidates(t *testing.T) {
	st := newTestChromemStore(t)
	ctx := context.Background()

	if err := st.AddChunks(ctx, docChunks("doc-a", "guide.txt",
		"alpha bravo charlie delta",
		"alpha bravo echo foxtrot")); err != nil {
		t.Fatal(err)
	}
	if err := st.AddChunks(ctx, docChunks("doc-b", "notes.txt", "alpha bravo golf hotel")); err != nil {
		t.Fatal(err)
	}

	// topK stays within the filtered candidate count.
	results, err := st.SimilaritySearch(ctx, "alpha bravo charlie delta", 2,
		map[string]string{"document_id": "doc-a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("filtered search returned %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Metadata["document_id"] != "doc-a" {
			t.Errorf("filter leaked document %q", r.Metadata["document_id"])
		}
	}
}

func TestChromemStore_TopKAboveChunkCount(t *testing.T) {
	st := newTestChromemStore(t)
	ctx := context.Background()

	if err := st.AddChunks(ctx, docChunks("doc-a", "guide.txt", "chunk one", "chunk two")); err != nil {
		t.Fatal(err)
	}

	// Asking for more results than stored chunks must clamp, not error.
	results, err := st.SimilaritySearch(ctx, "chunk one", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 2 {
		t.Errorf("got %d results from a 2-chunk store", len(results))
	}
	if len(results) == 0 {
		t.Error("expected at least the exact match")
	}
}

func TestChromemStore_EmptyStoreSearch(t *testing.T) {
	st := newTestChromemStore(t)
	results, err := st.SimilaritySearch(context.Background(), "anything at all", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("empty store returned %d results", len(results))
	}
}
