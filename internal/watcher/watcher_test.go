package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects callback invocations from a watcher under test.
type recorder struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
}

func (r *recorder) onIngest(path string) {
	r.mu.Lock()
	r.ingested = append(r.ingested, path)
	r.mu.Unlock()
}

func (r *recorder) onRemove(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) ingestedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ingested...)
}

func (r *recorder) removedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func containsSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, roots, extensions []string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(roots, extensions, true, rec.onIngest, rec.onRemove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_IngestsAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	path := filepath.Join(dir, "notes.txt")
	// Several writes in quick succession must collapse into one ingest.
	for i := 0; i < 3; i++ {
		if err := writeFile(path, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := writeFile(filepath.Join(dir, "picture.png"), "binary"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)

	ingested := rec.ingestedPaths()
	count := 0
	for _, p := range ingested {
		if p == path {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 ingest of %s, got %d (%v)", path, count, ingested)
	}
	if containsSuffix(ingested, "picture.png") {
		t.Errorf("picture.png should be filtered out, got %v", ingested)
	}
}

func TestWatcher_RemoveTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	path := filepath.Join(dir, "doomed.txt")
	if err := writeFile(path, "short lived"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if !containsSuffix(rec.removedPaths(), "doomed.txt") {
		t.Errorf("expected remove callback for doomed.txt, got %v", rec.removedPaths())
	}
}

func TestWatcher_RenameRemovesOldPath(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, rec)

	oldPath := filepath.Join(dir, "before.txt")
	newPath := filepath.Join(dir, "after.txt")
	if err := writeFile(oldPath, "contents"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if !containsSuffix(rec.removedPaths(), "before.txt") {
		t.Errorf("expected remove callback for before.txt, got %v", rec.removedPaths())
	}
	if !containsSuffix(rec.ingestedPaths(), "after.txt") {
		t.Errorf("expected ingest of after.txt, got %v", rec.ingestedPaths())
	}
}

func TestWatcher_DeleteDuringDebounceCancelsIngest(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".txt"}, true, rec.onIngest, rec.onRemove, WithDebounce(400*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "flash.txt")
	if err := writeFile(path, "gone before the debounce fires"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)

	if containsSuffix(rec.ingestedPaths(), "flash.txt") {
		t.Errorf("file deleted during debounce should not be ingested, got %v", rec.ingestedPaths())
	}
	if !containsSuffix(rec.removedPaths(), "flash.txt") {
		t.Errorf("expected remove callback for flash.txt, got %v", rec.removedPaths())
	}
}

func TestWatcher_NewDirectorySweep(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt", ".md"}, rec)

	// Simulate a folder copied wholesale into the watched root.
	nested := filepath.Join(dir, "dropped", "deep")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "dropped", "guide.md"), "guide"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "skip.bin"), "skip"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)

	ingested := rec.ingestedPaths()
	if !containsSuffix(ingested, "guide.md") {
		t.Errorf("expected guide.md to be ingested, got %v", ingested)
	}
	if !containsSuffix(ingested, "deep.txt") {
		t.Errorf("expected deep.txt to be ingested, got %v", ingested)
	}
	if containsSuffix(ingested, "skip.bin") {
		t.Errorf("skip.bin should be filtered out, got %v", ingested)
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := mkdirAll(filepath.Join(dir, "sub")); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "old.txt"), "was here before start"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "sub", "older.md"), "also here"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "noise.dat"), "ignored"); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".txt", ".md"}, true, rec.onIngest, nil, WithDebounce(50*time.Millisecond))
	w.SyncExistingFiles()
	defer w.Stop()

	time.Sleep(300 * time.Millisecond)

	ingested := rec.ingestedPaths()
	if !containsSuffix(ingested, "old.txt") || !containsSuffix(ingested, "older.md") {
		t.Errorf("expected pre-existing files to be ingested, got %v", ingested)
	}
	if containsSuffix(ingested, "noise.dat") {
		t.Errorf("noise.dat should be filtered out, got %v", ingested)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not-yet", "kb")

	rec := &recorder{}
	w := NewWatcher([]string{root}, nil, true, rec.onIngest, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start should create missing roots, got %v", err)
	}
	defer w.Stop()

	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_MatchExtension(t *testing.T) {
	tests := []struct {
		name       string
		extensions []string
		path       string
		want       bool
	}{
		{"listed extension", []string{".txt", ".md"}, "/kb/a.txt", true},
		{"unlisted extension", []string{".txt"}, "/kb/a.pdf", false},
		{"case insensitive", []string{".txt"}, "/kb/A.TXT", true},
		{"no leading dot in config", []string{"md"}, "/kb/readme.md", true},
		{"no extension on file", []string{".txt"}, "/kb/Makefile", false},
		{"empty list matches all", nil, "/kb/anything.xyz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWatcher(nil, tt.extensions, true, nil, nil)
			if got := w.matchExtension(tt.path); got != tt.want {
				t.Errorf("matchExtension(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWatcher_UnderRoot(t *testing.T) {
	w := NewWatcher([]string{"/kb/docs"}, nil, true, nil, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"/kb/docs/a.txt", true},
		{"/kb/docs/sub/b.txt", true},
		{"/kb/docs", true},
		{"/kb/other/c.txt", false},
		{"/kb", false},
	}
	for _, tt := range tests {
		if got := w.underRoot(tt.path); got != tt.want {
			t.Errorf("underRoot(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher([]string{dir}, nil, true, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
