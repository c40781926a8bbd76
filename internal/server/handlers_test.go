package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/store"
)

// newTestServer wires the full pipeline on the in-memory store with local
// providers. No network is touched.
func newTestServer(t *testing.T, demo bool) *Server {
	t.Helper()
	logger := zap.NewNop()
	cfg := config.Default()
	cfg.Storage.Backend = store.BackendMemory
	cfg.Storage.SnapshotPath = filepath.Join(t.TempDir(), "snapshot.json")
	cfg.Embedding.Dimensions = 64
	cfg.Demo.Enabled = demo

	emb := embedding.NewProvider(context.Background(), &cfg.Embedding, logger)
	gen := generation.NewProvider(context.Background(), &cfg.Generation, logger)
	st, err := store.New(&cfg.Storage, &cfg.Retrieval, emb, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	idx := indexer.NewService(st, nil, &cfg.Ingest, indexer.WithLogger(logger))
	ragSvc := rag.NewService(st, emb, gen, &cfg.Retrieval, &cfg.Demo, rag.WithLogger(logger))
	return NewServer(ragSvc, idx, cfg, "test", logger)
}

func multipartBody(t *testing.T, names []string, contents []string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, name := range names {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(contents[i])); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v\n%s", err, w.Body.String())
	}
}

func TestHandleRoot(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.handleRoot(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if out["version"] != "test" || out["status"] != "healthy" {
		t.Errorf("root = %v", out)
	}
}

func TestHandleUpload(t *testing.T) {
	srv := newTestServer(t, false)
	body, contentType := multipartBody(t,
		[]string{"notes.txt"},
		[]string{"Kotae answers questions using retrieval augmented generation."})
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Message   string                 `json:"message"`
		Documents []*models.DocumentInfo `json:"documents"`
	}
	decodeBody(t, w, &out)
	if out.Message != "Successfully processed 1 documents" {
		t.Errorf("message = %q", out.Message)
	}
	if len(out.Documents) != 1 || out.Documents[0].Filename != "notes.txt" {
		t.Fatalf("documents = %+v", out.Documents)
	}
	if out.Documents[0].ChunkCount < 1 {
		t.Errorf("chunk count = %d", out.Documents[0].ChunkCount)
	}
}

func TestHandleUpload_NoFiles(t *testing.T) {
	srv := newTestServer(t, false)
	body, contentType := multipartBody(t, nil, nil)
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if out["error"] != "No files provided" {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleUpload_PartialFailure(t *testing.T) {
	srv := newTestServer(t, false)
	body, contentType := multipartBody(t,
		[]string{"good.txt", "bad.xyz"},
		[]string{"Readable text content.", "whatever"})
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Documents []*models.DocumentInfo `json:"documents"`
	}
	decodeBody(t, w, &out)
	if len(out.Documents) != 1 || out.Documents[0].Filename != "good.txt" {
		t.Errorf("documents = %+v", out.Documents)
	}
}

func TestHandleUpload_AllFailed(t *testing.T) {
	srv := newTestServer(t, false)
	body, contentType := multipartBody(t, []string{"bad.xyz"}, []string{"whatever"})
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleUpload_FileTooLarge(t *testing.T) {
	srv := newTestServer(t, false)
	srv.config.Ingest.MaxFileSize = 8
	body, contentType := multipartBody(t, []string{"big.txt"}, []string{"this file is larger than eight bytes"})
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if !strings.Contains(out["error"], "file too large") {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleQuery_InvalidBody(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestHandleQuery_EmptyQuery(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"   "}`))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if out["error"] != "query cannot be empty" {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleQuery_TopKOutOfRange(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"valid","top_k":500}`))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", w.Code)
	}
}

// decodeFrames splits an NDJSON body into events, requiring every line to
// parse.
func decodeFrames(t *testing.T, body string) []models.StreamEvent {
	t.Helper()
	var frames []models.StreamEvent
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		var ev models.StreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, ev)
	}
	return frames
}

func TestHandleQuery_NoResultsStreamsError(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"unanswerable"}`))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}
	frames := decodeFrames(t, w.Body.String())
	if len(frames) != 3 {
		t.Fatalf("frames = %+v", frames)
	}
	if frames[0].Type != "status" || frames[1].Type != "error" || frames[2].Type != "end" {
		t.Errorf("frame order = %s,%s,%s", frames[0].Type, frames[1].Type, frames[2].Type)
	}
	if frames[1].Message != "No relevant information found in the knowledge base." {
		t.Errorf("error frame = %q", frames[1].Message)
	}
}

func TestHandleQuery_DemoStream(t *testing.T) {
	srv := newTestServer(t, true)
	r := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query":"tell me about the documents"}`))
	w := httptest.NewRecorder()
	srv.handleQuery(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	frames := decodeFrames(t, w.Body.String())
	if len(frames) < 5 {
		t.Fatalf("expected a full stream, got %d frames", len(frames))
	}
	if frames[0].Type != "status" || frames[0].Message != "Searching knowledge base..." {
		t.Errorf("first frame = %+v", frames[0])
	}
	if frames[len(frames)-1].Type != "end" {
		t.Errorf("last frame = %+v", frames[len(frames)-1])
	}
	sources := frames[len(frames)-2]
	if sources.Type != "sources" || len(sources.Sources) != 3 {
		t.Fatalf("penultimate frame = %+v", sources)
	}
	if sources.ModelUsed == "" || sources.ResponseTime <= 0 {
		t.Errorf("sources frame missing metadata: %+v", sources)
	}
	tokens := 0
	for _, fr := range frames {
		if fr.Type == "token" {
			tokens++
		}
	}
	if tokens == 0 {
		t.Error("no token frames streamed")
	}
}

func TestHandleListDocuments_Empty(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	w := httptest.NewRecorder()
	srv.handleListDocuments(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Documents  []*models.DocumentInfo `json:"documents"`
		TotalCount int                    `json:"total_count"`
	}
	decodeBody(t, w, &out)
	if out.Documents == nil || out.TotalCount != 0 {
		t.Errorf("list = %+v", out)
	}
}

func TestHandleDeleteDocument(t *testing.T) {
	srv := newTestServer(t, false)

	// Ingest through the handler so the route sees a real document ID.
	body, contentType := multipartBody(t, []string{"doc.txt"}, []string{"Text to be deleted later."})
	r := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	r.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.handleUpload(w, r)
	var uploaded struct {
		Documents []*models.DocumentInfo `json:"documents"`
	}
	decodeBody(t, w, &uploaded)
	if len(uploaded.Documents) != 1 {
		t.Fatalf("upload failed: %+v", uploaded)
	}
	id := uploaded.Documents[0].ID

	// Through the router so {id} resolves.
	handler := srv.Handler()
	r = httptest.NewRequest(http.MethodDelete, "/api/documents/"+id, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status: got %d, body %s", w.Code, w.Body.String())
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if out["message"] != "Document "+id+" deleted successfully" {
		t.Errorf("message = %q", out["message"])
	}

	r = httptest.NewRequest(http.MethodDelete, "/api/documents/"+id, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status: got %d", w.Code)
	}
	decodeBody(t, w, &out)
	if out["error"] != "Document not found" {
		t.Errorf("error = %q", out["error"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, false)
	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out models.HealthReport
	decodeBody(t, w, &out)
	if out.Status != models.StatusHealthy {
		t.Errorf("status = %q", out.Status)
	}
	for _, name := range []string{"embedding", "generation", "vector_store"} {
		if _, ok := out.Components[name]; !ok {
			t.Errorf("missing component %q", name)
		}
	}
}
