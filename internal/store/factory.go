package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
)

// Backend names accepted by the storage config.
const (
	// BackendChromem persists embeddings on disk via chromem-go. Default.
	BackendChromem = "chromem"
	// BackendMemory keeps everything in memory behind a JSON snapshot.
	BackendMemory = "memory"
)

// New creates the configured store backend. The persistent backend is
// preferred; when it cannot be opened the process falls back to the
// in-memory variant and stays there, with the reason logged once.
func New(cfg *config.StorageConfig, retrieval *config.RetrievalConfig, provider *embedding.Provider, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendChromem, "":
		st, err := NewChromemStore(cfg.ChromaPath, cfg.CatalogPath, retrieval, provider, WithChromemLogger(logger))
		if err == nil {
			return st, nil
		}
		logger.Warn("persistent store unavailable, using in-memory store", zap.Error(err))
		return NewMemoryStore(cfg.SnapshotPath, retrieval, provider, WithMemoryLogger(logger))
	case BackendMemory:
		return NewMemoryStore(cfg.SnapshotPath, retrieval, provider, WithMemoryLogger(logger))
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: chromem, memory)", cfg.Backend)
	}
}
