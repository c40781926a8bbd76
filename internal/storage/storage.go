// Package storage provides the document catalog backing the vector store.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Catalog records which chunks belong to which documents. The vector store
// holds content and embeddings; the catalog answers listing, counting, and
// membership questions without scanning the vector store.
type Catalog interface {
	// RecordChunks inserts or replaces catalog rows for the chunks.
	RecordChunks(ctx context.Context, chunks []*models.Chunk) error
	// DeleteDocument removes all rows of a document and returns how many
	// there were.
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
	// Documents lists documents grouped from chunk rows, oldest first.
	Documents(ctx context.Context) ([]*models.DocumentInfo, error)
	// CountChunks returns the total number of chunk rows.
	CountChunks(ctx context.Context) (int64, error)
	Close() error
}
