package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/internal/models"
)

// multipartMemoryLimit is how much of an upload is held in memory before the
// parser spools parts to temp files.
const multipartMemoryLimit = 32 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "Kotae Knowledge Base API",
		"version": s.version,
		"status":  "healthy",
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, "No files provided")
		return
	}

	maxSize := s.config.Ingest.MaxFileSize
	files := make([]models.FileInput, 0, len(headers))
	var lastErr error
	for _, header := range headers {
		// Oversize files are rejected before their bytes are read; the rest
		// of the batch still goes through.
		if maxSize > 0 && header.Size > maxSize {
			lastErr = errs.Newf(errs.CodeFileTooLarge, "file too large: %d bytes (max %d)", header.Size, maxSize)
			s.logger.Warn("upload rejected", zap.String("filename", header.Filename), zap.Error(lastErr))
			continue
		}
		part, err := header.Open()
		if err != nil {
			lastErr = err
			s.logger.Warn("upload part unreadable", zap.String("filename", header.Filename), zap.Error(err))
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			lastErr = err
			s.logger.Warn("upload part unreadable", zap.String("filename", header.Filename), zap.Error(err))
			continue
		}
		files = append(files, models.FileInput{Filename: header.Filename, Data: data})
	}
	if len(files) == 0 {
		status, message := clientError(lastErr)
		s.respondError(w, status, message)
		return
	}

	s.logger.Debug("upload request", zap.Int("files", len(files)))
	docs, err := s.indexer.ProcessDocuments(r.Context(), files)
	if err != nil {
		s.logger.Error("upload failed", zap.Error(err))
		status, message := clientError(err)
		s.respondError(w, status, message)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":   fmt.Sprintf("Successfully processed %d documents", len(docs)),
		"documents": docs,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	retrieval := s.config.Retrieval
	if err := req.Validate(retrieval.TopK, retrieval.MaxTopK, retrieval.MaxQueryLength); err != nil {
		status, message := clientError(err)
		s.respondError(w, status, message)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// One frame per line, flushed as produced. When the client goes away the
	// request context cancels the stream; keep draining so the producer can
	// finish shutting down.
	enc := json.NewEncoder(w)
	var writeErr error
	for event := range s.rag.QueryStream(r.Context(), &req) {
		if writeErr != nil {
			continue
		}
		if writeErr = enc.Encode(event); writeErr != nil {
			s.logger.Debug("query stream client gone", zap.Error(writeErr))
			continue
		}
		flusher.Flush()
	}
	if writeErr == nil {
		_ = enc.Encode(models.StreamEvent{Type: models.EventTypeEnd})
		flusher.Flush()
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.indexer.Documents(r.Context())
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		status, message := clientError(err)
		s.respondError(w, status, message)
		return
	}
	if docs == nil {
		docs = []*models.DocumentInfo{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents":   docs,
		"total_count": len(docs),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	found, err := s.indexer.DeleteDocument(r.Context(), id)
	if err != nil {
		s.logger.Error("deletion failed", zap.Error(err))
		status, message := clientError(err)
		s.respondError(w, status, message)
		return
	}
	if !found {
		s.respondError(w, http.StatusNotFound, "Document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Document %s deleted successfully", id),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.rag.Health(r.Context()))
}

// clientError maps an error to the status and message a client may see.
// Internal detail never leaves the process; it is already in the logs.
func clientError(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "Internal server error"
	}
	if errs.IsInternal(err) {
		return errs.HTTPStatus(err), "Internal server error"
	}
	return errs.HTTPStatus(err), errs.MessageOf(err)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
