package store

import (
	"sort"
	"strconv"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
)

// assignSeq stamps each chunk with a monotone insertion counter. Search uses
// it to break score ties in insertion order, and Documents uses it to list
// documents oldest-first.
func assignSeq(chunks []*models.Chunk) {
	base := time.Now().UnixNano()
	for i, ch := range chunks {
		if ch.Metadata == nil {
			ch.Metadata = make(map[string]string)
		}
		ch.Metadata["seq"] = strconv.FormatInt(base+int64(i), 10)
	}
}

// chunkMetadata flattens a chunk into the string-only metadata stored next to
// its content and embedding.
func chunkMetadata(ch *models.Chunk) map[string]string {
	m := make(map[string]string, len(ch.Metadata)+3)
	for k, v := range ch.Metadata {
		m[k] = v
	}
	m["document_id"] = ch.DocumentID
	m["page_number"] = strconv.Itoa(ch.PageNumber)
	m["chunk_index"] = strconv.Itoa(ch.ChunkIndex)
	return m
}

func seqOf(metadata map[string]string) int64 {
	v, _ := strconv.ParseInt(metadata["seq"], 10, 64)
	return v
}

func metaInt64(metadata map[string]string, key string) int64 {
	v, _ := strconv.ParseInt(metadata[key], 10, 64)
	return v
}

func metaTime(metadata map[string]string, key string) time.Time {
	t, _ := time.Parse(time.RFC3339, metadata[key])
	return t
}

// sortResults orders hits by score descending, ties broken by insertion order
// so repeated queries return a stable ranking.
func sortResults(results []*models.RetrievalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return seqOf(results[i].Metadata) < seqOf(results[j].Metadata)
	})
}

func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// effectiveThreshold picks the similarity cutoff for the active embedding
// variant. Hash-based local embeddings score far lower than model embeddings,
// so the local variant gets its own threshold.
func effectiveThreshold(cfg *config.RetrievalConfig, variant embedding.Variant) float64 {
	if variant != embedding.VariantRemote {
		return cfg.FallbackThreshold
	}
	return cfg.SimilarityThreshold
}
