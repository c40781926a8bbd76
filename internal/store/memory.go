package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/internal/models"
)

// storedChunk is the content half of a snapshot entry. The embedding lives
// in its own map so the snapshot mirrors the two in-memory maps exactly.
type storedChunk struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// snapshot is the single JSON document written after every mutation. Both
// maps land together, so a reload never sees a chunk without its embedding.
type snapshot struct {
	Chunks     map[string]storedChunk `json:"chunks"`
	Embeddings map[string][]float32   `json:"embeddings"`
}

// MemoryStore is a brute-force in-memory vector store persisted through a
// JSON snapshot. It backs the process when the persistent store cannot be
// opened, and small installs that do not want one.
type MemoryStore struct {
	mu         sync.RWMutex
	chunks     map[string]storedChunk
	embeddings map[string][]float32

	provider     *embedding.Provider
	retrieval    *config.RetrievalConfig
	snapshotPath string
	logger       *zap.Logger
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryLogger sets a logger for snapshot and embedding events.
func WithMemoryLogger(l *zap.Logger) MemoryOption {
	return func(m *MemoryStore) { m.logger = l }
}

// NewMemoryStore creates an in-memory store that reloads snapshotPath when
// present and rewrites it after every mutation. A missing snapshot means an
// empty store; a corrupt one is logged and ignored.
func NewMemoryStore(snapshotPath string, retrieval *config.RetrievalConfig, provider *embedding.Provider, opts ...MemoryOption) (*MemoryStore, error) {
	m := &MemoryStore{
		chunks:       make(map[string]storedChunk),
		embeddings:   make(map[string][]float32),
		provider:     provider,
		retrieval:    retrieval,
		snapshotPath: snapshotPath,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if snapshotPath != "" {
		if err := os.MkdirAll(filepath.Dir(snapshotPath), 0o755); err != nil {
			return nil, fmt.Errorf("create snapshot dir: %w", err)
		}
		if err := m.loadSnapshot(); err != nil {
			m.logger.Warn("snapshot unreadable, starting empty",
				zap.String("path", snapshotPath), zap.Error(err))
		}
	}
	return m, nil
}

// Backend returns the backend name reported in health and CLI output.
func (m *MemoryStore) Backend() string { return BackendMemory }

// AddChunks embeds the chunks and stores them. Chunks whose embedding fails
// are dropped; the call errors only when nothing could be stored.
func (m *MemoryStore) AddChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	assignSeq(chunks)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := m.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return errs.Wrap(errs.CodeEmbeddingFailed, err, "embedding failed")
	}

	m.mu.Lock()
	stored := 0
	for i, ch := range chunks {
		if vectors[i] == nil {
			m.logger.Warn("chunk dropped, embedding failed", zap.String("chunk_id", ch.ID))
			continue
		}
		m.chunks[ch.ID] = storedChunk{Content: ch.Content, Metadata: chunkMetadata(ch)}
		m.embeddings[ch.ID] = vectors[i]
		stored++
	}
	m.mu.Unlock()

	if stored == 0 {
		return errs.New(errs.CodeEmbeddingFailed, "no chunks could be embedded")
	}
	return m.saveSnapshot()
}

// SimilaritySearch embeds the query and linear-scans every stored chunk.
// Results below the effective threshold are discarded; the rest come back
// score descending, ties in insertion order, at most topK.
func (m *MemoryStore) SimilaritySearch(ctx context.Context, query string, topK int, filter map[string]string) ([]*models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	queryVec, err := m.provider.Embed(ctx, query)
	if err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "query embedding failed")
	}
	threshold := effectiveThreshold(m.retrieval, m.provider.Variant())

	m.mu.RLock()
	results := make([]*models.RetrievalResult, 0, len(m.chunks))
	for id, ch := range m.chunks {
		if len(filter) > 0 && !matchesFilter(ch.Metadata, filter) {
			continue
		}
		score := CosineSimilarity(queryVec, m.embeddings[id])
		if score < threshold {
			continue
		}
		results = append(results, &models.RetrievalResult{
			Content:  ch.Content,
			Metadata: ch.Metadata,
			Score:    score,
		})
	}
	m.mu.RUnlock()

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes every chunk of the document. Deleting a document
// that is not there reports found=false and no error.
func (m *MemoryStore) DeleteDocument(ctx context.Context, documentID string) (bool, error) {
	m.mu.Lock()
	var removed []string
	for id, ch := range m.chunks {
		if ch.Metadata["document_id"] == documentID {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(m.chunks, id)
		delete(m.embeddings, id)
	}
	m.mu.Unlock()

	if len(removed) == 0 {
		return false, nil
	}
	if err := m.saveSnapshot(); err != nil {
		return true, err
	}
	m.logger.Info("document deleted",
		zap.String("document_id", documentID), zap.Int("chunks", len(removed)))
	return true, nil
}

// Documents derives the document list by grouping chunk metadata, ordered by
// first insertion.
func (m *MemoryStore) Documents(ctx context.Context) ([]*models.DocumentInfo, error) {
	m.mu.RLock()
	type group struct {
		info     *models.DocumentInfo
		firstSeq int64
	}
	groups := make(map[string]*group)
	for _, ch := range m.chunks {
		docID := ch.Metadata["document_id"]
		seq := seqOf(ch.Metadata)
		g, ok := groups[docID]
		if !ok {
			g = &group{
				info: &models.DocumentInfo{
					ID:         docID,
					Filename:   ch.Metadata["filename"],
					FileType:   ch.Metadata["file_type"],
					FileSize:   metaInt64(ch.Metadata, "file_size"),
					UploadDate: metaTime(ch.Metadata, "upload_date"),
					Status:     "processed",
				},
				firstSeq: seq,
			}
			groups[docID] = g
		}
		g.info.ChunkCount++
		if seq < g.firstSeq {
			g.firstSeq = seq
		}
	}
	m.mu.RUnlock()

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].firstSeq < ordered[j].firstSeq })
	infos := make([]*models.DocumentInfo, len(ordered))
	for i, g := range ordered {
		infos[i] = g.info
	}
	return infos, nil
}

// Size returns the number of stored chunks.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

// Close is a no-op; every mutation already hit the snapshot.
func (m *MemoryStore) Close() error { return nil }

// saveSnapshot writes the full state atomically: marshal, write a temp file
// next to the target, rename over it.
func (m *MemoryStore) saveSnapshot() error {
	if m.snapshotPath == "" {
		return nil
	}
	m.mu.RLock()
	data, err := json.Marshal(snapshot{Chunks: m.chunks, Embeddings: m.embeddings})
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.snapshotPath), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.snapshotPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (m *MemoryStore) loadSnapshot() error {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Chunks != nil {
		m.chunks = snap.Chunks
	}
	if snap.Embeddings != nil {
		m.embeddings = snap.Embeddings
	}
	return nil
}
