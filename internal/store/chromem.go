package store

import (
	"context"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

// ChromemStore persists chunk embeddings in a chromem-go database. chromem
// cannot enumerate or group documents, so a SQLite catalog rides along and
// answers Documents, Size, and existence checks.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	catalog    storage.Catalog

	provider  *embedding.Provider
	retrieval *config.RetrievalConfig
	logger    *zap.Logger
}

// ChromemOption configures a ChromemStore.
type ChromemOption func(*ChromemStore)

// WithChromemLogger sets a logger for store events.
func WithChromemLogger(l *zap.Logger) ChromemOption {
	return func(c *ChromemStore) { c.logger = l }
}

// NewChromemStore opens (or creates) the persistent database at chromaPath
// and the catalog at catalogPath. The query embedding goes through the same
// provider that embeds chunks, so stored and query vectors share one space.
func NewChromemStore(chromaPath, catalogPath string, retrieval *config.RetrievalConfig, provider *embedding.Provider, opts ...ChromemOption) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(chromaPath, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return provider.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(CollectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", CollectionName, err)
	}
	catalog, err := storage.NewSQLiteCatalog(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c := &ChromemStore{
		db:         db,
		collection: collection,
		catalog:    catalog,
		provider:   provider,
		retrieval:  retrieval,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Backend returns the backend name reported in health and CLI output.
func (c *ChromemStore) Backend() string { return BackendChromem }

// AddChunks embeds the chunks in one batch, stores the survivors with their
// precomputed embeddings, and records them in the catalog.
func (c *ChromemStore) AddChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	assignSeq(chunks)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := c.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return errs.Wrap(errs.CodeEmbeddingFailed, err, "embedding failed")
	}

	docs := make([]chromem.Document, 0, len(chunks))
	kept := make([]*models.Chunk, 0, len(chunks))
	for i, ch := range chunks {
		if vectors[i] == nil {
			c.logger.Warn("chunk dropped, embedding failed", zap.String("chunk_id", ch.ID))
			continue
		}
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Metadata:  chunkMetadata(ch),
			Embedding: vectors[i],
			Content:   ch.Content,
		})
		kept = append(kept, ch)
	}
	if len(docs) == 0 {
		return errs.New(errs.CodeEmbeddingFailed, "no chunks could be embedded")
	}
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return errs.Wrap(errs.CodeStoreUnavailable, err, "store chunks")
	}
	if err := c.catalog.RecordChunks(ctx, kept); err != nil {
		return errs.Wrap(errs.CodeStoreUnavailable, err, "record chunks")
	}
	return nil
}

// SimilaritySearch queries the collection and keeps hits above the effective
// threshold, score descending with insertion-order tie-breaks, at most topK.
func (c *ChromemStore) SimilaritySearch(ctx context.Context, query string, topK int, filter map[string]string) ([]*models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	// chromem rejects nResults above the collection size.
	if count := c.collection.Count(); count < topK {
		if count == 0 {
			return nil, nil
		}
		topK = count
	}
	var where map[string]string
	if len(filter) > 0 {
		where = filter
	}
	hits, err := c.collection.Query(ctx, query, topK, where, nil)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreUnavailable, err, "similarity query")
	}
	threshold := effectiveThreshold(c.retrieval, c.provider.Variant())
	results := make([]*models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		score := float64(h.Similarity)
		if score < threshold {
			continue
		}
		results = append(results, &models.RetrievalResult{
			Content:  h.Content,
			Metadata: h.Metadata,
			Score:    score,
		})
	}
	sortResults(results)
	return results, nil
}

// DeleteDocument removes the document's chunks from the collection and the
// catalog. The catalog row count decides whether anything existed.
func (c *ChromemStore) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	rows, err := c.catalog.DeleteDocument(ctx, documentID)
	if err != nil {
		return false, errs.Wrap(errs.CodeStoreUnavailable, err, "delete document")
	}
	if rows == 0 {
		return false, nil
	}
	if err := c.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return true, errs.Wrap(errs.CodeStoreUnavailable, err, "delete document chunks")
	}
	c.logger.Info("document deleted",
		zap.String("document_id", documentID), zap.Int64("chunks", rows))
	return true, nil
}

// Documents lists documents from the catalog, oldest first.
func (c *ChromemStore) Documents(ctx context.Context) ([]*models.DocumentInfo, error) {
	docs, err := c.catalog.Documents(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.CodeStoreUnavailable, err, "list documents")
	}
	return docs, nil
}

// Size returns the number of stored chunks.
func (c *ChromemStore) Size() int {
	return c.collection.Count()
}

// Close closes the catalog; chromem holds no open handles between calls.
func (c *ChromemStore) Close() error {
	return c.catalog.Close()
}
