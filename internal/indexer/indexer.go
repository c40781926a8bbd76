// Package indexer provides document chunking and ingestion into the vector store.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
	"go.uber.org/zap"
)

// Service ingests documents: extract text, chunk, and add to the vector store.
type Service struct {
	store     store.Store
	chunker   *Chunker
	extractor *extract.Extractor
	config    *config.IngestConfig
	logger    *zap.Logger // optional; when set, logs ingestion events
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for ingestion events (file ingested, document skipped, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates an ingestion service. extractor may be nil; a default
// one is used.
func NewService(st store.Store, extractor *extract.Extractor, cfg *config.IngestConfig, opts ...Option) *Service {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	s := &Service{
		store:     st,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		extractor: extractor,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessDocuments ingests uploaded files. Files that fail validation or
// extraction are skipped and logged; the returned slice holds the documents
// that made it in. An error is returned only when every file failed.
func (s *Service) ProcessDocuments(ctx context.Context, files []models.FileInput) ([]*models.DocumentInfo, error) {
	infos := make([]*models.DocumentInfo, 0, len(files))
	var lastErr error
	for _, f := range files {
		info, err := s.ingest(ctx, uuid.New().String(), f)
		if err != nil {
			lastErr = err
			if s.logger != nil {
				s.logger.Warn("document skipped", zap.String("filename", f.Filename), zap.Error(err))
			}
			continue
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 && len(files) > 0 {
		if len(files) == 1 {
			return nil, lastErr
		}
		return nil, errs.Wrap(errs.CodeExtractionFailed, lastErr, "no documents were successfully processed")
	}
	return infos, nil
}

// ingest runs one file through the pipeline under the given document ID.
func (s *Service) ingest(ctx context.Context, docID string, f models.FileInput) (*models.DocumentInfo, error) {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if !extract.Supported(ext) {
		return nil, errs.Newf(errs.CodeUnsupportedFileType, "unsupported file type: %s (supported: %s)",
			ext, strings.Join(extract.SupportedList(), ", "))
	}
	if s.config.MaxFileSize > 0 && int64(len(f.Data)) > s.config.MaxFileSize {
		return nil, errs.Newf(errs.CodeFileTooLarge, "file too large: %d bytes (max %d)", len(f.Data), s.config.MaxFileSize)
	}
	text, err := s.extractor.ExtractBytes(f.Data, ext)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunker.ChunkDocument(docID, text)
	if err != nil {
		return nil, err
	}
	fileType := strings.TrimPrefix(ext, ".")
	uploaded := time.Now().UTC()
	for _, ch := range chunks {
		ch.Metadata = map[string]string{
			"filename":    f.Filename,
			"file_type":   fileType,
			"file_size":   strconv.Itoa(len(f.Data)),
			"upload_date": uploaded.Format(time.RFC3339),
		}
	}
	if err := s.store.AddChunks(ctx, chunks); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("document ingested",
			zap.String("doc_id", docID),
			zap.String("filename", f.Filename),
			zap.Int("chunks", len(chunks)))
	}
	return &models.DocumentInfo{
		ID:         docID,
		Filename:   f.Filename,
		FileType:   fileType,
		FileSize:   int64(len(f.Data)),
		UploadDate: uploaded,
		ChunkCount: len(chunks),
		Status:     "processed",
	}, nil
}

// IngestFile reads a file from path and ingests it. The document ID is
// derived from the absolute path so re-ingesting replaces the same document.
func (s *Service) IngestFile(ctx context.Context, path string) (*models.DocumentInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	docID := fileid.FileDocID(absPath)
	if _, err := s.store.DeleteDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("replace existing document: %w", err)
	}
	doc, err := s.ingest(ctx, docID, models.FileInput{Filename: filepath.Base(absPath), Data: data})
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("file ingested", zap.String("path", absPath), zap.String("doc_id", docID))
	}
	return doc, nil
}

// RemoveFile deletes the document previously ingested from path. Reports
// whether anything was removed.
func (s *Service) RemoveFile(ctx context.Context, path string) (bool, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("absolute path: %w", err)
	}
	return s.store.DeleteDocument(ctx, fileid.FileDocID(absPath))
}

// DeleteDocument removes a document and its chunks from the store.
func (s *Service) DeleteDocument(ctx context.Context, id string) (bool, error) {
	found, err := s.store.DeleteDocument(ctx, id)
	if err != nil {
		return false, err
	}
	if found && s.logger != nil {
		s.logger.Debug("document deleted", zap.String("id", id))
	}
	return found, nil
}

// Documents lists ingested documents.
func (s *Service) Documents(ctx context.Context) ([]*models.DocumentInfo, error) {
	return s.store.Documents(ctx)
}
