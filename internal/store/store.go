// Package store provides vector stores for chunk embeddings and similarity search.
package store

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// CollectionName is the chromem collection all chunks live in.
const CollectionName = "knowledge_base"

// Store persists chunks with their embeddings and answers similarity queries.
type Store interface {
	// AddChunks embeds and stores the chunks. Chunks whose embedding fails
	// are dropped; an error is returned only when nothing could be stored.
	AddChunks(ctx context.Context, chunks []*models.Chunk) error
	// SimilaritySearch embeds the query and returns up to topK chunks above
	// the similarity threshold, best first. filter restricts candidates by
	// exact metadata match; nil means no restriction.
	SimilaritySearch(ctx context.Context, query string, topK int, filter map[string]string) ([]*models.RetrievalResult, error)
	// DeleteDocument removes all chunks of a document. The bool reports
	// whether any chunk existed.
	DeleteDocument(ctx context.Context, documentID string) (bool, error)
	// Documents lists stored documents in insertion order.
	Documents(ctx context.Context) ([]*models.DocumentInfo, error)
	Size() int
	Backend() string
	Close() error
}
